//go:build windows && !dev

package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/getlantern/systray"
)

//go:embed assets/icon.ico
var iconData []byte

func main() {
	a, err := newApp(false)
	if err != nil {
		panic(err)
	}
	log := a.log

	// process lifetime (CTRL+C / session end)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a.startHTTP()

	go func() {
		<-ctx.Done()
		systray.Quit()
	}()

	systray.Run(func() {
		if len(iconData) > 0 {
			systray.SetIcon(iconData)
		}
		systray.SetTooltip(fmt.Sprintf("StockHub %s", ver))

		mStart := systray.AddMenuItem("Start sync", "Start the integrations")
		mStop := systray.AddMenuItem("Stop sync", "Stop the integrations")
		mStop.Disable()

		systray.AddSeparator()
		mStatus := systray.AddMenuItem("Status", "Log the current status")
		mOpenLogs := systray.AddMenuItem("Open logs", "Show the log file")
		mOpenCfg := systray.AddMenuItem("Settings (config.json)", "Open the config file")
		mReload := systray.AddMenuItem("Reload config", "Read config.json again")
		mImports := systray.AddMenuItem("Open import folder", "Folder watched for stock exports")
		systray.AddSeparator()
		mAbout := systray.AddMenuItem(fmt.Sprintf("About (%s)", ver), "")
		mQuit := systray.AddMenuItem("Quit", "Close the application")

		running := func(on bool) {
			if on {
				mStart.Disable()
				mStop.Enable()
				systray.SetTooltip(fmt.Sprintf("StockHub %s - running", ver))
				return
			}
			mStop.Disable()
			mStart.Enable()
			systray.SetTooltip(fmt.Sprintf("StockHub %s - stopped", ver))
		}

		if a.cfg.AutoStart {
			if err := a.syncer.Start(ctx); err == nil {
				running(true)
			} else {
				log.Error().Err(err).Msg("auto start failed")
				systray.SetTooltip(fmt.Sprintf("StockHub %s - start failed", ver))
			}
		}

		go func() {
			for {
				select {
				case <-mStart.ClickedCh:
					if err := a.syncer.Start(ctx); err != nil {
						log.Error().Err(err).Msg("start failed")
						systray.SetTooltip(fmt.Sprintf("StockHub %s - start failed", ver))
						continue
					}
					running(true)

				case <-mStop.ClickedCh:
					a.syncer.Stop()
					running(false)

				case <-mStatus.ClickedCh:
					st := a.syncer.Status()
					log.Info().
						Bool("running", st.Running).
						Strs("integrations", st.Integrations).
						Int("low_stock", st.LowStock).
						Int64("pending_sync", st.PendingSync).
						Msg("status")

				case <-mOpenLogs.ClickedCh:
					openInExplorer(a.logPath)

				case <-mOpenCfg.ClickedCh:
					openInExplorer(a.cfgPath)

				case <-mImports.ClickedCh:
					var ic struct {
						WatchDir string `json:"watch_dir"`
					}
					if err := a.cfg.UnmarshalIntegration("importer", &ic); err != nil || ic.WatchDir == "" {
						log.Warn().Err(err).Msg("importer not configured")
						continue
					}
					openInExplorer(expandHome(ic.WatchDir))

				case <-mReload.ClickedCh:
					if err := a.reload(ctx); err != nil {
						log.Error().Err(err).Msg("reload failed")
					}

				case <-mAbout.ClickedCh:
					log.Info().Msgf("StockHub %s | %s", ver, runtime.Version())

				case <-mQuit.ClickedCh:
					cancel()
					systray.Quit()
					return
				}
			}
		}()
	}, func() {
		a.close()
		time.Sleep(50 * time.Millisecond)
	})
}

// opens a file or folder in the default application
func openInExplorer(path string) {
	switch runtime.GOOS {
	case "windows":
		// "start" must run through cmd /C with an empty window title
		_ = exec.Command("cmd", "/C", "start", "", path).Start()
	case "darwin":
		_ = exec.Command("open", path).Start()
	default:
		_ = exec.Command("xdg-open", path).Start()
	}
}

func expandHome(p string) string {
	if len(p) > 0 && p[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return home + p[1:]
		}
	}
	return p
}
