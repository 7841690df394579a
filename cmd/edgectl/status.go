package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the last known device geometry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint("/v2/info", 10*time.Second)
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the device and print its geometry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint("/health", 30*time.Second)
		},
	}
}

func getAndPrint(path string, timeout time.Duration) error {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(host + path)
	if err != nil {
		return fmt.Errorf("get %s: %w", host+path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return serverError(resp.StatusCode, body)
	}
	fmt.Println(string(body))
	return nil
}
