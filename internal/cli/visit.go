package cli

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/roomverse/internal/discovery"
	"github.com/rcliao/roomverse/internal/llm"
	"github.com/rcliao/roomverse/internal/peer"
	"github.com/rcliao/roomverse/internal/room"
	"github.com/rcliao/roomverse/internal/translate"
)

func init() {
	cmd := &cobra.Command{
		Use:   "visit [url]",
		Short: "Send the character out to visit another room",
		Long:  "Open a conversation with a remote room as this character. With no URL, a random room is picked from the discovery service.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runVisit,
	}

	RootCmd.AddCommand(cmd)
}

func runVisit(cmd *cobra.Command, args []string) {
	s, cfg, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	target := ""
	if len(args) > 0 {
		target = args[0]
	} else {
		target, err = pickRoom(cmd, cfg.Discovery.URL, cfg.InstanceID)
		if err != nil {
			exitErr("pick room", err)
		}
	}

	r := room.New(cfg, s, llm.NewClient(cfg.LLM, cfg.Character), translate.Noop{}, logger)
	dispatcher := room.NewDispatcher(r,
		peer.NewClient(time.Duration(cfg.Agent.TimeoutSecs)*time.Second),
		cfg.InstanceID,
		cfg.Agent.MaxTurns,
		time.Duration(cfg.Agent.PacingSecs)*time.Second,
		logger)

	logger.Info("visiting", zap.String("target", target))
	if !dispatcher.Dispatch(cmd.Context(), target) {
		exitErr("visit", fmt.Errorf("a visit to %s is already running", target))
	}
	dispatcher.Wait()

	for _, ev := range r.History().Events() {
		fmt.Printf("%s: %s\n", ev.SenderName, ev.Content)
	}
}

func pickRoom(cmd *cobra.Command, discoveryURL, selfUUID string) (string, error) {
	if discoveryURL == "" {
		return "", fmt.Errorf("no url given and no discovery service configured")
	}

	rooms, err := discovery.NewHTTPClient(discoveryURL).ListRooms(cmd.Context())
	if err != nil {
		return "", err
	}

	candidates := rooms[:0]
	for _, rm := range rooms {
		if rm.UUID != selfUUID && rm.URL != "" {
			candidates = append(candidates, rm)
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no other rooms are online")
	}
	return candidates[rand.Intn(len(candidates))].URL, nil
}
