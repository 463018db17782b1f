package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"nstbot/internal/nst"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type convertOptions struct {
	in        string
	out       string
	prefix    string
	upto      int
	normalize bool
}

func newRootCommand() *cobra.Command {
	opts := convertOptions{}

	cmd := &cobra.Command{
		Use:           "nstconvert",
		Short:         "Convert a torchvision VGG19 safetensors export into an nstbot model file",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).With().Timestamp().Logger()
			return convert(opts, cmd.OutOrStdout(), logger)
		},
	}

	cmd.Flags().StringVar(&opts.in, "in", "", "safetensors file holding the vgg19 state dict")
	cmd.Flags().StringVar(&opts.out, "out", "model/vgg19.nstw", "model file to write")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "features", "state dict prefix of the convolutional stack")
	cmd.Flags().IntVar(&opts.upto, "upto", 28, "index of the last layer to keep")
	cmd.Flags().BoolVar(&opts.normalize, "normalize", true, "fold ImageNet mean and std into the first convolution")
	_ = cmd.MarkFlagRequired("in")

	return cmd
}

func convert(opts convertOptions, out io.Writer, logger zerolog.Logger) error {
	src, err := os.Open(opts.in)
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	defer src.Close()

	tensors, err := nst.ReadSafetensors(bufio.NewReader(src))
	if err != nil {
		return fmt.Errorf("read %s: %w", opts.in, err)
	}
	logger.Info().Str("path", opts.in).Int("tensors", len(tensors)).Msg("read export")

	var norm *nst.Normalization
	if opts.normalize {
		norm = &nst.ImageNet
	}

	layers, err := nst.BuildSequential(tensors, opts.prefix, nst.VGG19Features, 3, opts.upto, norm)
	if err != nil {
		return fmt.Errorf("build network: %w", err)
	}

	if err := writeModel(opts.out, layers); err != nil {
		return err
	}
	logger.Info().Str("path", opts.out).Int("layers", len(layers)).Bool("normalized", opts.normalize).Msg("model written")

	return renderSummary(out, layers)
}

func writeModel(path string, layers []nst.Layer) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create model directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create model file: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	w := bufio.NewWriter(f)
	if err := nst.WriteModel(w, layers); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	return w.Flush()
}

func renderSummary(out io.Writer, layers []nst.Layer) error {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "kind", "in", "out", "kernel"})

	for i, l := range layers {
		row := table.Row{i, l.Kind().String(), "", "", ""}
		switch layer := l.(type) {
		case *nst.Conv2D:
			row = table.Row{i, l.Kind().String(), layer.InC, layer.OutC, fmt.Sprintf("%dx%d", layer.K, layer.K)}
		case nst.MaxPool2D:
			row[4] = fmt.Sprintf("%dx%d/%d", layer.Size, layer.Size, layer.Stride)
		}
		tw.AppendRow(row)
	}

	_, err := fmt.Fprintln(out, tw.Render())
	return err
}
