package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/facewatch/facewatch/pkg/logging"
)

// cascadeURL is the published pigo frontal face cascade.
const cascadeURL = "https://raw.githubusercontent.com/esimov/pigo/master/cascade/facefinder"

func cmdDownloadCascade(args []string) error {
	targetPath := cfg.Detection.CascadePath
	if len(args) > 0 {
		targetPath = args[0]
	}

	if _, err := os.Stat(targetPath); err == nil {
		logging.Infof("Cascade %s already exists, skipping", targetPath)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	logging.Infof("Downloading face cascade to: %s", targetPath)
	if err := download(cascadeURL, targetPath); err != nil {
		return fmt.Errorf("failed to download cascade: %w", err)
	}

	logging.Info("Cascade model downloaded successfully")
	return nil
}

func download(url, targetPath string) error {
	client := &http.Client{Timeout: 2 * time.Minute}

	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	out, err := os.Create(targetPath)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	_, err = io.Copy(out, resp.Body)
	return err
}
