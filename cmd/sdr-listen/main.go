package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"sdr-monitor/internal/config"
	"sdr-monitor/internal/listener"
	"sdr-monitor/internal/logging"
	"sdr-monitor/internal/playout"
	"sdr-monitor/internal/wire"
)

const (
	saveInterval = 30 * time.Second
	bufferLength = 4 * time.Second
)

var (
	serverURL string
	logLevel  string
	margin    float64
	password  string
	tuneMode  string

	bmMode   string
	bmFolder bool
	bmParent string
)

var rootCmd = &cobra.Command{
	Use:          "sdr-listen",
	Short:        "Listen to an sdr-monitor server with local squelch",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(logLevel, os.Stderr)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return listen(ctx, marginFlag(cmd.Flags()))
	},
}

var tuneCmd = &cobra.Command{
	Use:   "tune FREQ",
	Short: "Retune the server, e.g. tune 120.5M --mode AM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hz, err := config.ParseFrequency(args[0])
		if err != nil {
			return err
		}
		c, err := listener.Tune(int64(hz), tuneMode, password)
		if err != nil {
			return err
		}
		return sendOne(c)
	},
}

var recordCmd = &cobra.Command{
	Use:       "record start|stop",
	Short:     "Start or stop the server-side recording",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"start", "stop"},
	RunE: func(cmd *cobra.Command, args []string) error {
		t := wire.TypeStartRecording
		if args[0] == "stop" {
			t = wire.TypeStopRecording
		}
		return sendOne(wire.Command{Type: t})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a recording on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendOne(wire.Command{Type: wire.TypeDeleteRecording, Filename: args[0]})
	},
}

var bookmarkCmd = &cobra.Command{
	Use:   "bookmark",
	Short: "List, add or delete server bookmarks",
}

var bookmarkListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the bookmark tree",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		marks, err := fetchBookmarks()
		if err != nil {
			return err
		}
		printBookmarks(cmd.OutOrStdout(), marks, nil, 0)
		return nil
	},
}

var bookmarkAddCmd = &cobra.Command{
	Use:   "add TITLE [FREQ]",
	Short: "Add a bookmark, e.g. add Tower 118.1M --mode AM, or a folder with --folder",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var mhz float64
		if !bmFolder {
			if len(args) != 2 {
				return fmt.Errorf("a bookmark needs a frequency")
			}
			hz, err := config.ParseFrequency(args[1])
			if err != nil {
				return err
			}
			mhz = float64(hz) / 1e6
		}
		c, err := listener.AddBookmark(args[0], mhz, bmMode, bmFolder, bmParent)
		if err != nil {
			return err
		}
		return sendOne(c)
	},
}

var bookmarkDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a bookmark; deleting a folder removes its contents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendOne(wire.Command{Type: wire.TypeDeleteBookmark, ID: args[0]})
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&serverURL, "url", "u", "ws://localhost:3000/ws", "monitor websocket URL")
	pf.StringVar(&logLevel, "log-level", "INFO", "DEBUG, INFO, WARN or ERROR")

	rootCmd.Flags().Float64Var(&margin, "margin", 0, "squelch margin above the noise floor, -50..50 (default per mode)")

	tuneCmd.Flags().StringVarP(&tuneMode, "mode", "m", "FM", "AM or FM")
	tuneCmd.Flags().StringVarP(&password, "password", "p", "", "retune password")

	bf := bookmarkAddCmd.Flags()
	bf.StringVarP(&bmMode, "mode", "m", "FM", "AM or FM")
	bf.BoolVar(&bmFolder, "folder", false, "add a folder instead of a bookmark")
	bf.StringVar(&bmParent, "parent", "", "id of the containing folder")
	bookmarkCmd.AddCommand(bookmarkListCmd, bookmarkAddCmd, bookmarkDeleteCmd)

	rootCmd.AddCommand(tuneCmd, recordCmd, deleteCmd, bookmarkCmd)
}

func marginFlag(fs *pflag.FlagSet) *float64 {
	if !fs.Changed("margin") {
		return nil
	}
	return &margin
}

func dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", serverURL, err)
	}
	return conn, nil
}

func sendOne(c wire.Command) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.WriteJSON(c); err != nil {
		return err
	}
	log.Printf("[INFO] listen: sent %s", c.Type)
	return conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// fetchBookmarks reads the greeting up to the bookmark list.
func fetchBookmarks() ([]wire.Bookmark, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(dl)
	}
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		if typ, _ := wire.MessageType(data); typ != wire.TypeBookmarks {
			continue
		}
		var l wire.BookmarkList
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, err
		}
		return l.Data, nil
	}
}

func printBookmarks(w io.Writer, marks []wire.Bookmark, parent *string, depth int) {
	for _, bm := range marks {
		if (parent == nil) != (bm.ParentID == nil) || (parent != nil && *parent != *bm.ParentID) {
			continue
		}
		indent := strings.Repeat("  ", depth)
		if bm.IsFolder {
			fmt.Fprintf(w, "%s%s/  [%s]\n", indent, bm.Title, bm.ID)
			id := bm.ID
			printBookmarks(w, marks, &id, depth+1)
			continue
		}
		fmt.Fprintf(w, "%s%s  %.3f MHz %s  [%s]\n", indent, bm.Title, bm.Freq, bm.Mode, bm.ID)
	}
}

type inbound struct {
	kind int
	data []byte
}

func listen(ctx context.Context, margin *float64) error {
	conn, err := dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	var device *playout.Device
	sess := listener.New(func(rate int) (listener.Sink, error) {
		tl := playout.NewTimeline(rate, bufferLength)
		d, err := playout.Open(tl)
		if err != nil {
			return nil, err
		}
		device = d
		log.Printf("[INFO] listen: audio at %d Hz", rate)
		return tl, nil
	}, margin)
	defer func() {
		if device != nil {
			device.Close()
		}
	}()

	msgs := make(chan inbound, 64)
	readErr := make(chan error, 1)
	go func() {
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			msgs <- inbound{kind, data}
		}
	}()

	save := func() {
		if c, ok := sess.SaveSquelch(); ok {
			if err := conn.WriteJSON(c); err != nil {
				log.Printf("[WARN] listen: save_squelch: %v", err)
			}
		}
	}
	ticker := time.NewTicker(saveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			save()
			frames, audible := sess.Stats()
			log.Printf("[INFO] listen: %d frames, %d audible", frames, audible)
			return nil
		case err := <-readErr:
			return fmt.Errorf("read: %w", err)
		case <-ticker.C:
			save()
		case m := <-msgs:
			switch m.kind {
			case websocket.BinaryMessage:
				if _, err := sess.HandleFrame(m.data); err != nil {
					log.Printf("[DEBUG] listen: %v", err)
				}
			case websocket.TextMessage:
				if err := sess.Handle(m.data); err != nil {
					log.Printf("[WARN] listen: %v", err)
				}
			}
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
