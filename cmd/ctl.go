package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/turion/turionlink/config"
	"github.com/turion/turionlink/core/printer"
	"github.com/turion/turionlink/infra/logger"
	"github.com/turion/turionlink/infra/mqtt"
)

var ctlNoWait bool

var ctlCmd = &cobra.Command{
	Use:       "ctl [stop|pause|resume]",
	Short:     "Send a job control command to the printer",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"stop", "pause", "resume"},
	RunE:      runCtl,
}

var gcodeCmd = &cobra.Command{
	Use:   "gcode <line>",
	Short: "Run a raw G-code line on the printer",
	Args:  cobra.ExactArgs(1),
	RunE:  runGcode,
}

func init() {
	ctlCmd.Flags().BoolVar(&ctlNoWait, "no-wait", false, "do not await the device acknowledgement (stop only)")
	rootCmd.AddCommand(ctlCmd)
	rootCmd.AddCommand(gcodeCmd)
}

func withSession(fn func(ctx context.Context, sess *mqtt.Session) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	sess, err := mqtt.NewSession(cfg.Printer)
	if err != nil {
		return err
	}
	if err := sess.Connect(ctx); err != nil {
		return err
	}
	defer sess.Disconnect()
	return fn(ctx, sess)
}

func runCtl(cmd *cobra.Command, args []string) error {
	return withSession(func(ctx context.Context, sess *mqtt.Session) error {
		log := logger.New("ctl")
		if ctlNoWait {
			if args[0] != "stop" {
				return fmt.Errorf("--no-wait only applies to stop")
			}
			return sess.StopNoReply(ctx)
		}

		var reply printer.Reply
		var err error
		switch args[0] {
		case "stop":
			reply, err = sess.Stop(ctx)
		case "pause":
			reply, err = sess.Pause(ctx)
		case "resume":
			reply, err = sess.Resume(ctx)
		}
		if err != nil {
			return err
		}
		if !reply.Succeeded() {
			return fmt.Errorf("%s rejected: %s", args[0], reply.Reason())
		}
		log.Infof("%s acknowledged", args[0])
		return nil
	})
}

func runGcode(cmd *cobra.Command, args []string) error {
	return withSession(func(ctx context.Context, sess *mqtt.Session) error {
		reply, err := sess.RawGcode(ctx, args[0])
		if err != nil {
			return err
		}
		if !reply.Succeeded() {
			return fmt.Errorf("gcode rejected: %s", reply.Reason())
		}
		return nil
	})
}
