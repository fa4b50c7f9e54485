package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Brownie44l1/waste-api/internal/model"
	"github.com/Brownie44l1/waste-api/internal/store"
	"github.com/Brownie44l1/waste-api/internal/view"
	"github.com/Brownie44l1/waste-api/internal/workflow"
)

func classifyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "classify [image]",
		Short: "Classify one image file and print the per-class probabilities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := model.NewSharedLoader(model.FileLoader{
				ModelPath:         a.settings.Model.Path,
				MetadataPath:      a.settings.Model.MetadataPath,
				SharedLibraryPath: a.settings.Model.SharedLibraryPath,
			}, a.logger)
			defer model.Shutdown() //nolint:errcheck
			defer loader.Close()   //nolint:errcheck
			return classifyFile(cmd.Context(), loader, args[0], cmd.OutOrStdout(), a.logger)
		},
	}
}

// pathInput is the file input of a one-shot CLI run; the path argument is
// the selection.
type pathInput struct {
	logger *zap.Logger
}

func (p pathInput) Open()  { p.logger.Debug("file input opened") }
func (p pathInput) Clear() { p.logger.Debug("file input cleared") }

// classifyFile walks one image through load, upload, identify and reset.
func classifyFile(ctx context.Context, loader model.Loader, path string, out io.Writer, logger *zap.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	images := store.NewImages(0)
	d := workflow.NewDriver(loader, images, pathInput{logger: logger}, workflow.Options{
		ID:               "cli",
		RecoverOnFailure: true,
		Logger:           logger,
	})
	defer d.Close()

	if err := d.LoadModel(ctx); err != nil {
		return err
	}
	if err := d.TriggerUpload(); err != nil {
		return err
	}
	file := workflow.File{Name: filepath.Base(path), ContentType: mime.TypeByExtension(filepath.Ext(path)), Data: data}
	if err := d.HandleFileSelected([]workflow.File{file}); err != nil {
		return err
	}
	if err := d.Identify(ctx); err != nil {
		return err
	}

	v := view.Render(d.ID(), d.Snapshot(), false)
	fmt.Fprintln(out, v.BestLabel)
	for _, line := range v.Lines {
		fmt.Fprintln(out, line)
	}
	return d.Reset(ctx)
}
