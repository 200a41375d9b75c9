package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/chriskillpack/glance"
)

func runDescribe(cmd *cobra.Command, args []string) error {
	path := args[0]

	// Rejected on extension before the file is read.
	mimeType, err := glance.ValidateUpload(filepath.Base(path), "")
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	g, err := initGlance(cmd.Context(), glance.MemoryLedger)
	if err != nil {
		return err
	}
	defer g.Close()

	g.Requester.Wait = countdown(cmd.ErrOrStderr())

	fmt.Fprintf(cmd.ErrOrStderr(), "Extracting image information with %s model %s...\n", g.Name(), g.Model())
	res := g.Requester.Analyze(cmd.Context(), glance.Image{Data: data, MIMEType: mimeType})
	if !res.OK() {
		return fmt.Errorf("%s", res.Message())
	}

	fmt.Fprintln(cmd.OutOrStdout(), res.Description)
	return nil
}

// countdown returns a Wait function that renders the delay as a progress bar
// on w. It always blocks for at least d.
func countdown(w io.Writer) func(time.Duration) {
	return func(d time.Duration) {
		const tick = 100 * time.Millisecond

		deadline := time.Now().Add(d)
		steps := int(d / tick)
		bar := progressbar.NewOptions(
			steps,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(fmt.Sprintf("Waiting for %s", d)),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
		)
		for range steps {
			time.Sleep(tick)
			bar.Add(1)
		}
		time.Sleep(time.Until(deadline))
		bar.Finish()
	}
}
