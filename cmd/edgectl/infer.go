package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"edgeflowd/pkg/types"
)

func newInferCmd() *cobra.Command {
	var (
		inputPath string
		modelPath string
		metaPath  string
		outPath   string
		asJSON    bool
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Submit an .npy batch for on-device inference",
		Long: `Submit a float32 .npy array of shape (T,F) or (N,T,F) to the server.
With --model the firmware model is flashed before inference runs.
By default predictions are saved as .npy; --json prints the JSON response instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := os.ReadFile(inputPath)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			if err := addFilePart(mw, "input_npy", filepath.Base(inputPath), input); err != nil {
				return err
			}
			if modelPath != "" {
				model, err := os.ReadFile(modelPath)
				if err != nil {
					return fmt.Errorf("read model: %w", err)
				}
				if err := addFilePart(mw, "model_bin", filepath.Base(modelPath), model); err != nil {
					return err
				}
			}
			if metaPath != "" {
				meta, err := os.ReadFile(metaPath)
				if err != nil {
					return fmt.Errorf("read meta: %w", err)
				}
				if err := addFilePart(mw, "model_meta", filepath.Base(metaPath), meta); err != nil {
					return err
				}
			}
			if err := mw.Close(); err != nil {
				return err
			}

			endpoint := host + "/v2/infer_npy"
			if asJSON {
				endpoint = host + "/v2/infer"
			}
			client := &http.Client{Timeout: timeout}
			resp, err := client.Post(endpoint, mw.FormDataContentType(), &buf)
			if err != nil {
				return fmt.Errorf("post %s: %w", endpoint, err)
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				return serverError(resp.StatusCode, body)
			}

			if asJSON {
				fmt.Println(string(body))
				return nil
			}
			if err := os.WriteFile(outPath, body, 0o644); err != nil {
				return fmt.Errorf("write predictions: %w", err)
			}
			fmt.Printf("wrote %s (%d bytes)\n", outPath, len(body))
			return nil
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "Input .npy file (required)")
	cmd.Flags().StringVar(&modelPath, "model", "", "Optional model binary to flash before inference")
	cmd.Flags().StringVar(&metaPath, "meta", "", "Optional model metadata JSON to stage alongside the model")
	cmd.Flags().StringVar(&outPath, "out", "pred.npy", "Where to write the prediction .npy")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the JSON response instead of saving .npy")
	cmd.Flags().DurationVar(&timeout, "timeout", 45*time.Minute, "Overall HTTP timeout (flashing can trigger a firmware build)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func addFilePart(mw *multipart.Writer, field, filename string, data []byte) error {
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return err
	}
	_, err = fw.Write(data)
	return err
}

// serverError turns a non-200 response into a readable error, preferring the
// structured payload when the server sent one.
func serverError(status int, body []byte) error {
	var er types.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		return fmt.Errorf("server returned %d: %s", status, er.Error)
	}
	return fmt.Errorf("server returned %d: %s", status, bytes.TrimSpace(body))
}
