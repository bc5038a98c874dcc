package export

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const docxMimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// pandocArgs builds the HTML to DOCX command line. A reference document, when
// configured, supplies the Word styles.
func pandocArgs(referenceDoc string) []string {
	args := []string{"-f", "html", "-t", "docx", "--standalone"}
	if referenceDoc != "" {
		args = append(args, "--reference-doc", referenceDoc)
	}
	// "-" writes the document to stdout.
	return append(args, "-o", "-")
}

// exportDOCX converts the rendered page with pandoc.
func exportDOCX(ctx context.Context, job renderJob) (*Result, error) {
	if _, err := exec.LookPath("pandoc"); err != nil {
		return nil, fmt.Errorf("%w: pandoc not installed", ErrDOCXDependencyMissing)
	}

	cmd := exec.CommandContext(ctx, "pandoc", pandocArgs(job.ReferenceDoc)...)
	cmd.Stdin = strings.NewReader(job.HTML)

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("pandoc failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("pandoc execution failed: %w", err)
	}

	return &Result{
		Data:     output,
		Filename: job.Name + ".docx",
		MimeType: docxMimeType,
	}, nil
}
