// cmd/but/watch.go
// Copyright(c) 2026 The but Authors
// BSD licensed; see LICENSE for details.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mmp/but/config"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run backups on a schedule, reloading configuration on change",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch()
		},
	}
}

// runWatch implements §4.15's scheduler adapter: a robfig/cron job fires
// a full backup of every configured target at settings.interval, and
// config.WatchConfig live-reloads the schedule and targets whenever the
// file on disk changes, without restarting the process.
func runWatch() error {
	log := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c := cron.New()
	var entryID cron.EntryID

	schedule := intervalSchedule(cfg.Settings.Interval)
	entryID, err = c.AddFunc(schedule, func() {
		if err := runBackup(""); err != nil {
			log.Error("scheduled backup failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule backup job: %w", err)
	}

	if err := config.WatchConfig(flagConfigPath, func(newCfg *config.Config) {
		log.Verbose("config changed, rescheduling with interval=%ds", newCfg.Settings.Interval)
		c.Remove(entryID)
		id, err := c.AddFunc(intervalSchedule(newCfg.Settings.Interval), func() {
			if err := runBackup(""); err != nil {
				log.Error("scheduled backup failed: %v", err)
			}
		})
		if err != nil {
			log.Error("reschedule failed: %v", err)
			return
		}
		entryID = id
	}); err != nil {
		return err
	}

	c.Start()
	defer c.Stop()

	fmt.Fprintf(os.Stdout, "watching, backing up every %ds (ctrl-c to stop)\n", cfg.Settings.Interval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	return nil
}

// intervalSchedule turns a settings.interval in seconds into a cron
// "@every" spec, since robfig/cron has no native seconds-count schedule.
func intervalSchedule(seconds int) string {
	if seconds <= 0 {
		seconds = config.DefaultInterval
	}
	return fmt.Sprintf("@every %ds", seconds)
}
