package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/turion/turionlink/config"
	"github.com/turion/turionlink/core/printer"
	"github.com/turion/turionlink/infra/ftps"
	"github.com/turion/turionlink/infra/logger"
	"github.com/turion/turionlink/infra/mqtt"
	"github.com/turion/turionlink/infra/telemetry"
)

var (
	printUseAMS    bool
	printAMS       []int
	printPlate     int
	printTaskName  string
	printTimelapse bool
)

var printCmd = &cobra.Command{
	Use:   "print <project.3mf>",
	Short: "Upload a 3MF project and print it, tracking progress until done",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrint,
}

func init() {
	printCmd.Flags().BoolVar(&printUseAMS, "use-ams", false, "use the AMS with a default slot mapping")
	printCmd.Flags().IntSliceVar(&printAMS, "ams-mapping", nil, "filament slot per material reference")
	printCmd.Flags().IntVar(&printPlate, "plate", 1, "plate to print")
	printCmd.Flags().StringVar(&printTaskName, "task-name", "", "task name shown on the device")
	printCmd.Flags().BoolVar(&printTimelapse, "timelapse", true, "record a timelapse")
	rootCmd.AddCommand(printCmd)
}

func runPrint(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New("print")

	projectPath := args[0]
	name := filepath.Base(projectPath)
	deviceURL := "ftp://sdcard/" + name

	mapping := printAMS
	if printUseAMS && len(mapping) == 0 {
		mapping = []int{0, 1, 2, 3}
	}

	log.Infof("uploading %s", projectPath)
	if err := upload(cfg, projectPath, name); err != nil {
		return err
	}

	sess, err := mqtt.NewSession(cfg.Printer, mqtt.WithLogger(logger.New("printer-session")))
	if err != nil {
		return err
	}
	if err := sess.Connect(ctx); err != nil {
		return err
	}
	defer sess.Disconnect()

	recorder := telemetry.NewRecorderWithFallback(cfg.Telemetry)
	defer recorder.Close()

	done := make(chan int, 1)
	finish := func(code int) {
		select {
		case done <- code:
		default:
		}
	}
	sess.SetStatusHandler(func(st printer.Status) {
		if err := recorder.RecordStatus(sess.Serial(), st); err != nil {
			log.Warnf("record status: %v", err)
		}
		if state := st.GcodeState(); state != "" {
			log.Infof("state: %s", state)
		}
		if pct, ok := st.Percent(); ok {
			log.Infof("progress: %d%%", pct)
		}
		if code := st.PrintError(); code != 0 {
			log.Errorf("print error %x, stopping", code)
			if err := sess.StopNoReply(context.Background()); err != nil {
				log.Errorf("stop: %v", err)
			}
			finish(1)
			return
		}
		if st.GcodeState() == "FINISH" {
			finish(0)
		}
	})

	opts := []printer.ProjectOption{
		printer.WithPlate(printPlate),
		printer.WithTimelapse(printTimelapse),
	}
	if printTaskName != "" {
		opts = append(opts, printer.WithTaskName(printTaskName))
	}

	log.Infof("starting print of %s", deviceURL)
	reply, err := sess.PrintProject(ctx, deviceURL, mapping, opts...)
	if err != nil {
		return err
	}
	if !reply.Succeeded() {
		if _, serr := sess.Stop(ctx); serr != nil {
			log.Errorf("stop after rejection: %v", serr)
		}
		return fmt.Errorf("print rejected: %s", reply.Reason())
	}
	log.Infof("print started")

	select {
	case code := <-done:
		if code != 0 {
			return fmt.Errorf("print failed")
		}
		log.Infof("print completed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func upload(cfg *config.Config, localPath, name string) error {
	up, err := ftps.Dial(cfg.Printer.Host, ftps.DefaultPort, cfg.Printer.Username, cfg.Printer.Password)
	if err != nil {
		return err
	}
	defer up.Close()

	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	up.Delete(name)
	return up.Store(name, f)
}
