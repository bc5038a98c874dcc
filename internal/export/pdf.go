package export

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// pdfTimeout bounds one Chrome run, including browser start-up.
const pdfTimeout = 30 * time.Second

// paperInches holds width and height in inches, the unit PrintToPDF expects.
var paperInches = map[Paper][2]float64{
	PaperLetter: {8.5, 11},
	PaperA4:     {8.27, 11.69},
}

var chromeBinaries = []string{"chromium-browser", "chromium", "google-chrome"}

// chromeBinary returns the first Chromium executable found on PATH.
func chromeBinary() (string, error) {
	for _, name := range chromeBinaries {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: chromium not installed", ErrPDFDependencyMissing)
}

// percentEncodeForDataURL encodes s for a data URL. Spaces become %20;
// url.QueryEscape would turn them into "+", which browsers keep literally.
func percentEncodeForDataURL(s string) string {
	var result strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~':
			// RFC 3986 unreserved
			result.WriteRune(r)
		case r == ' ':
			result.WriteString("%20")
		default:
			for _, b := range []byte(string(r)) {
				fmt.Fprintf(&result, "%%%02X", b)
			}
		}
	}
	return result.String()
}

// exportPDF prints the rendered page with headless Chrome.
func exportPDF(parent context.Context, job renderJob) (*Result, error) {
	binary, err := chromeBinary()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(parent, pdfTimeout)
	defer cancel()

	// Containers run Chrome as root with a small /dev/shm.
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(binary),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	size, ok := paperInches[job.Paper]
	if !ok {
		size = paperInches[PaperLetter]
	}

	var pdfData []byte
	err = chromedp.Run(taskCtx,
		chromedp.Navigate("data:text/html;charset=utf-8,"+percentEncodeForDataURL(job.HTML)),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfData, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(size[0]).
				WithPaperHeight(size[1]).
				WithMarginTop(0.75).
				WithMarginBottom(0.75).
				WithMarginLeft(0.75).
				WithMarginRight(0.75).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chrome pdf generation failed: %w", err)
	}

	return &Result{
		Data:     pdfData,
		Filename: job.Name + ".pdf",
		MimeType: "application/pdf",
	}, nil
}

// sanitizeFilename keeps ASCII letters, digits, hyphens and underscores and
// turns spaces into hyphens. The result is at most 50 bytes.
func sanitizeFilename(title string) string {
	var result strings.Builder
	for _, r := range strings.TrimSpace(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			result.WriteRune(r)
		case r == ' ':
			result.WriteByte('-')
		}
	}

	name := result.String()
	if len(name) > 50 {
		name = name[:50]
	}
	if name == "" {
		name = "document"
	}
	return name
}
