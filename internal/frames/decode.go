package frames

import (
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"os"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/scanrelay/scanrelay/internal/scan"
)

type symbologyReader struct {
	symbology scan.Symbology
	newReader func() gozxing.Reader
}

// readerOrder fixes the order candidates appear in a batch: 2D first, then
// the linear families.
var readerOrder = []symbologyReader{
	{scan.QR, func() gozxing.Reader { return qrcode.NewQRCodeReader() }},
	{scan.EAN13, func() gozxing.Reader { return oned.NewEAN13Reader() }},
	{scan.EAN8, func() gozxing.Reader { return oned.NewEAN8Reader() }},
	{scan.UPCA, func() gozxing.Reader { return oned.NewUPCAReader() }},
	{scan.Code128, func() gozxing.Reader { return oned.NewCode128Reader() }},
}

// Decoder finds codes of the subscribed symbologies in a frame.
type Decoder struct {
	symbologies []scan.Symbology
	hints       map[gozxing.DecodeHintType]interface{}
}

// NewDecoder returns a decoder limited to symbologies. An empty list means
// scan.DefaultSymbologies.
func NewDecoder(symbologies []scan.Symbology) *Decoder {
	if len(symbologies) == 0 {
		symbologies = scan.DefaultSymbologies
	}
	return &Decoder{
		symbologies: symbologies,
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// DecodeImage runs every subscribed reader over img. A frame with no
// readable code yields an empty batch and no error.
func (d *Decoder) DecodeImage(img image.Image) (scan.Batch, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("gozxing.NewBinaryBitmapFromImage failed: %w", err)
	}

	var batch scan.Batch
	for _, r := range readerOrder {
		if !wants(d.symbologies, r.symbology) {
			continue
		}
		result, err := r.newReader().Decode(bmp, d.hints)
		if err != nil {
			// NotFound, checksum and format errors all mean "nothing here".
			continue
		}
		batch = append(batch, scan.Candidate{Value: result.GetText(), Symbology: r.symbology})
	}
	return batch, nil
}

// DecodeFile decodes the PNG or JPEG frame at path.
func (d *Decoder) DecodeFile(path string) (scan.Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open frame %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("image.Decode %s failed: %w", path, err)
	}
	return d.DecodeImage(img)
}
