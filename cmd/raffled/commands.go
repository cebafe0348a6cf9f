package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

// flags
var urlFlag = &cli.StringFlag{
	Name:  "url",
	Usage: "base url of the daemon to reach",
	Value: "http://localhost:7070",
}

// commands
var (
	infoCmd = &cli.Command{
		Name:   "info",
		Usage:  "Get the coordinator configuration and live counters",
		Action: infoAction,
	}
	winnerCmd = &cli.Command{
		Name:   "winner",
		Usage:  "Get the winner of the last finalized round",
		Action: winnerAction,
	}
	upkeepCmd = &cli.Command{
		Name:  "upkeep",
		Usage: "Check or trigger the draw",
		Subcommands: append(
			cli.Commands{},
			upkeepCheckCmd,
			upkeepTriggerCmd,
		),
	}
	upkeepCheckCmd = &cli.Command{
		Name:   "check",
		Usage:  "Evaluate the draw-readiness predicate",
		Action: upkeepCheckAction,
	}
	upkeepTriggerCmd = &cli.Command{
		Name:   "trigger",
		Usage:  "Trigger the draw when upkeep is needed",
		Action: upkeepTriggerAction,
	}
	adminCmd = &cli.Command{
		Name:  "admin",
		Usage: "Administrative operations",
		Subcommands: append(
			cli.Commands{},
			reopenCmd,
		),
	}
	reopenCmd = &cli.Command{
		Name:   "reopen",
		Usage:  "Fail a stuck draw and reopen the round",
		Action: reopenAction,
	}
)

func infoAction(ctx *cli.Context) error {
	url := fmt.Sprintf("%s/v1/info", ctx.String("url"))
	buf, err := get(url)
	if err != nil {
		return err
	}

	fmt.Fprintln(ctx.App.Writer, string(buf))
	return nil
}

func winnerAction(ctx *cli.Context) error {
	url := fmt.Sprintf("%s/v1/winner", ctx.String("url"))
	buf, err := get(url)
	if err != nil {
		return err
	}

	res := make(map[string]string)
	if err := json.Unmarshal(buf, &res); err != nil {
		return err
	}

	fmt.Fprintln(ctx.App.Writer, res["winner"])
	return nil
}

func upkeepCheckAction(ctx *cli.Context) error {
	url := fmt.Sprintf("%s/v1/upkeep", ctx.String("url"))
	buf, err := get(url)
	if err != nil {
		return err
	}

	fmt.Fprintln(ctx.App.Writer, string(buf))
	return nil
}

func upkeepTriggerAction(ctx *cli.Context) error {
	url := fmt.Sprintf("%s/v1/upkeep", ctx.String("url"))
	buf, err := post(url, "")
	if err != nil {
		return err
	}

	res := make(map[string]string)
	if err := json.Unmarshal(buf, &res); err != nil {
		return err
	}

	fmt.Fprintf(ctx.App.Writer, "draw triggered, randomness request %s\n", res["request_id"])
	return nil
}

func reopenAction(ctx *cli.Context) error {
	url := fmt.Sprintf("%s/v1/admin/reopen", ctx.String("url"))
	if _, err := post(url, ""); err != nil {
		return err
	}

	fmt.Fprintln(ctx.App.Writer, "round reopened")
	return nil
}

func get(url string) ([]byte, error) {
	client := &http.Client{Timeout: 30 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get: %s", string(buf))
	}
	return buf, nil
}

func post(url, body string) ([]byte, error) {
	req, err := http.NewRequest("POST", url, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Add("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to post: %s", string(buf))
	}
	return buf, nil
}
