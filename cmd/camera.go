package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/turion/turionlink/config"
	"github.com/turion/turionlink/infra/camera"
	"github.com/turion/turionlink/infra/logger"
)

var cameraCmd = &cobra.Command{
	Use:   "camera",
	Short: "Dump the raw chamber camera stream to stdout",
	RunE:  runCamera,
}

func init() {
	rootCmd.AddCommand(cameraCmd)
}

func runCamera(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New("camera")

	stream, err := camera.Dial(cfg.Printer.Host, camera.DefaultPort, cfg.Printer.Username, cfg.Printer.Password)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		stream.Close()
	}()

	log.Infof("streaming from %s", cfg.Printer.Host)
	if err := stream.Copy(os.Stdout); err != nil {
		if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	}
	return nil
}
