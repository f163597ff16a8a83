package issuance

import (
	"bytes"
	"context"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	qrcode "github.com/skip2/go-qrcode"

	dErrors "github.com/laksac24/VeriFy/pkg/domain-errors"
)

// Stamper embeds a scannable verification link into a document artifact.
type Stamper interface {
	Stamp(ctx context.Context, artifact []byte, link string) ([]byte, error)
}

// qrPlacement puts the code in the lower-right corner of the first page,
// matching where verifiers expect to find it on issued certificates.
const qrPlacement = "pos:br, off:-20 40, scale:0.14 abs, rot:0"

// PDFStamper renders the link as a QR code and stamps it onto page one of a
// PDF artifact.
type PDFStamper struct{}

func NewPDFStamper() *PDFStamper {
	return &PDFStamper{}
}

func (p *PDFStamper) Stamp(_ context.Context, artifact []byte, link string) ([]byte, error) {
	png, err := qrcode.Encode(link, qrcode.Medium, 300)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "render qr code")
	}

	wm, err := api.ImageWatermarkForReader(bytes.NewReader(png), qrPlacement, true, false, types.POINTS)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "prepare qr watermark")
	}

	var out bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(artifact), &out, []string{"1"}, wm, nil); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "stamp qr onto document")
	}
	return out.Bytes(), nil
}

// InMemoryStamper marks artifacts with the link text instead of a real QR
// code and records every stamped link.
type InMemoryStamper struct {
	mu    sync.Mutex
	links []string

	// FailNext fails the next Stamp call.
	FailNext bool
}

func NewInMemoryStamper() *InMemoryStamper {
	return &InMemoryStamper{}
}

func (m *InMemoryStamper) Stamp(_ context.Context, artifact []byte, link string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNext {
		m.FailNext = false
		return nil, dErrors.New(dErrors.CodeInternal, "simulated stamp failure")
	}
	m.links = append(m.links, link)
	out := make([]byte, 0, len(artifact)+len(link)+1)
	out = append(out, artifact...)
	out = append(out, '\n')
	out = append(out, link...)
	return out, nil
}

// Links returns every link stamped so far.
func (m *InMemoryStamper) Links() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.links))
	copy(out, m.links)
	return out
}
