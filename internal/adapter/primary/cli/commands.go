package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"iphone-alarms-sync/internal/adapter/primary/web"
	"iphone-alarms-sync/internal/domain"
)

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newSetupCmd() *cobra.Command {
	var (
		name         string
		companion    string
		keepDisabled bool
	)
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create the phone for this entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				p, err := a.coord.SetupPhone(cmd.Context(), name, companion, keepDisabled)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "phone %q set up with id %s\n", p.Name, p.ID)
				fmt.Fprintf(out, "shortcut endpoint: %s\n", web.ShortcutURL(publicURL(), p.ID))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "phone name (required)")
	cmd.Flags().StringVar(&companion, "companion", "", "companion app device id")
	cmd.Flags().BoolVar(&keepDisabled, "keep-disabled", true, "keep alarms that are disabled or missing from a sync")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func publicURL() string {
	if cfg.HTTP.PublicURL != "" {
		return cfg.HTTP.PublicURL
	}
	return "http://" + cfg.HTTP.Addr
}

func newPhoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phone",
		Short: "Show, update or delete the phone",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Print the phone summary as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				return printJSON(cmd.OutOrStdout(), web.NewPhoneView(a.coord.Phone(), a.coord.Now(), a.coord.Location()))
			})
		},
	}

	var (
		name         string
		companion    string
		keepDisabled bool
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Update phone settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			var u domain.PhoneUpdate
			if cmd.Flags().Changed("name") {
				u.Name = &name
			}
			if cmd.Flags().Changed("companion") {
				u.CompanionDeviceID = &companion
			}
			if cmd.Flags().Changed("keep-disabled") {
				u.KeepDisabledAlarms = &keepDisabled
			}
			return withApp(cmd, func(a *app) error {
				if err := a.coord.UpdatePhone(cmd.Context(), u); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "saved")
				return nil
			})
		},
	}
	set.Flags().StringVar(&name, "name", "", "display name")
	set.Flags().StringVar(&companion, "companion", "", "companion app device id")
	set.Flags().BoolVar(&keepDisabled, "keep-disabled", true, "keep alarms that are disabled or missing from a sync")

	del := &cobra.Command{
		Use:   "delete",
		Short: "Forget the phone and every alarm",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				if err := a.coord.DeletePhone(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "phone deleted")
				return nil
			})
		},
	}

	cmd.AddCommand(get, set, del)
	return cmd
}

func newAlarmsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alarms",
		Short: "List and edit mirrored alarms",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List alarms with their next occurrence",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				views := web.NewAlarmViews(a.coord.Alarms(), a.coord.Now(), a.coord.Location())
				if asJSON {
					return printJSON(cmd.OutOrStdout(), views)
				}
				return printAlarmTable(cmd.OutOrStdout(), views, a.coord.Location())
			})
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")

	del := &cobra.Command{
		Use:   "delete ALARM_ID",
		Short: "Remove an alarm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				if err := a.coord.DeleteAlarm(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "alarm %s deleted\n", args[0])
				return nil
			})
		},
	}

	var label, icon string
	meta := &cobra.Command{
		Use:   "label ALARM_ID",
		Short: "Change an alarm's label or icon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var labelPtr, iconPtr *string
			if cmd.Flags().Changed("label") {
				labelPtr = &label
			}
			if cmd.Flags().Changed("icon") {
				iconPtr = &icon
			}
			if labelPtr == nil && iconPtr == nil {
				return errors.New("nothing to change: pass --label and/or --icon")
			}
			return withApp(cmd, func(a *app) error {
				if err := a.coord.UpdateAlarmMetadata(cmd.Context(), args[0], labelPtr, iconPtr); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "saved")
				return nil
			})
		},
	}
	meta.Flags().StringVar(&label, "label", "", "new label")
	meta.Flags().StringVar(&icon, "icon", "", "new icon, e.g. mdi:alarm")

	snooze := &cobra.Command{
		Use:   "snooze ALARM_ID MINUTES",
		Short: "Set the snooze duration (1-30 minutes)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			minutes, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("minutes must be a number: %w", err)
			}
			return withApp(cmd, func(a *app) error {
				if err := a.coord.UpdateSnoozeTime(cmd.Context(), args[0], minutes); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "snooze for %s set to %d minutes\n", args[0], minutes)
				return nil
			})
		},
	}

	cmd.AddCommand(list, del, meta, snooze)
	return cmd
}

func printAlarmTable(w io.Writer, views []web.AlarmView, loc *time.Location) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tENABLED\tDAYS\tNEXT\tLABEL")
	for _, v := range views {
		next := "-"
		if v.NextOccurrence != nil {
			next = v.NextOccurrence.In(loc).Format("Mon 2006-01-02 15:04")
		}
		days := "once"
		if v.Repeats && len(v.RepeatDays) > 0 {
			days = fmt.Sprint(v.RepeatDays)
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\t%s\n", v.ID, v.Time, v.Enabled, days, next, v.Label)
	}
	return tw.Flush()
}

func newSyncCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Apply a sync payload ({phone_id, alarms:[...]}) from a file or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			var req web.SyncRequest
			if err := json.NewDecoder(r).Decode(&req); err != nil {
				return fmt.Errorf("decode sync payload: %w", err)
			}
			return withApp(cmd, func(a *app) error {
				res, err := a.coord.Sync(cmd.Context(), req.PhoneID, req.DomainBatch())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "synced %d alarms: new=%v removed=%v changed=%t\n",
					len(req.Alarms), res.NewIDs, res.RemovedIDs, res.Changed)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "payload file, - for stdin")
	return cmd
}

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Record an alarm or device event",
	}
	alarm := &cobra.Command{
		Use:   "alarm ALARM_ID goes_off|snoozed|stopped",
		Short: "Record an event for one alarm",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				ev, err := a.coord.ReportAlarmEvent(cmd.Context(), args[0], domain.EventKind(args[1]))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recorded %s for %s (%s)\n", ev.Kind, ev.AlarmID, ev.ID)
				return nil
			})
		},
	}
	device := &cobra.Command{
		Use:       "device EVENT",
		Short:     "Record a phone-level event",
		Args:      cobra.ExactArgs(1),
		ValidArgs: domain.DeviceEventNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				ev, err := a.coord.ReportDeviceEvent(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recorded %s for %s (%s)\n", ev.Kind, ev.AlarmID, ev.ID)
				return nil
			})
		},
	}
	cmd.AddCommand(alarm, device)
	return cmd
}

func newNextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Show the soonest upcoming alarm",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				view := web.NewPhoneView(a.coord.Phone(), a.coord.Now(), a.coord.Location())
				out := cmd.OutOrStdout()
				if view.NextAlarm == nil {
					fmt.Fprintln(out, "no upcoming alarm")
					return nil
				}
				at := view.NextAlarm.At.In(a.coord.Location())
				fmt.Fprintf(out, "%s %s (%s) in %s\n", at.Format("Mon 2006-01-02 15:04"),
					view.NextAlarm.Label, view.NextAlarm.AlarmID, at.Sub(a.coord.Now()).Round(time.Minute))
				return nil
			})
		},
	}
}

func newQRCmd() *cobra.Command {
	var (
		out  string
		size int
	)
	cmd := &cobra.Command{
		Use:   "qr",
		Short: "Print the shortcut QR code, or write it as PNG with --out",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				p := a.coord.Phone()
				if p == nil {
					return domain.ErrPhoneNotLoaded
				}
				target := web.ShortcutURL(publicURL(), p.ID)
				if out != "" {
					png, err := web.ShortcutQR(target, size)
					if err != nil {
						return err
					}
					if err := os.WriteFile(out, png, 0o644); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "wrote %s for %s\n", out, target)
					return nil
				}
				q, err := qrcode.New(target, qrcode.Medium)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), q.ToSmallString(false))
				fmt.Fprintln(cmd.OutOrStdout(), target)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write a PNG to this path")
	cmd.Flags().IntVar(&size, "size", web.DefaultQRSize, fmt.Sprintf("PNG size in pixels (%d-%d)", web.MinQRSize, web.MaxQRSize))
	return cmd
}
