// conf/utils.go path and tool helpers
package conf

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/logger"
)

const appDir = "trackid"

// GetDefaultConfigPaths returns the config search paths for this OS. When one
// of them already holds config.yaml only that path is returned.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	var paths []string
	if runtime.GOOS == "windows" {
		exePath, err := os.Executable()
		if err != nil {
			return nil, errors.New(err).
				Category(errors.CategorySystem).
				Context("operation", "get-executable-path").
				Build()
		}
		paths = []string{filepath.Dir(exePath), filepath.Join(homeDir, "AppData", "Roaming", appDir)}
	} else {
		paths = []string{filepath.Join(homeDir, ".config", appDir), "/etc/" + appDir}
	}

	for _, p := range paths {
		if _, err := os.Stat(filepath.Join(p, "config.yaml")); err == nil {
			return []string{p}, nil
		}
	}
	return paths, nil
}

// FindConfigFile locates an existing config.yaml.
func FindConfigFile() (string, error) {
	paths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}
	for _, p := range paths {
		file := filepath.Join(p, "config.yaml")
		if _, err := os.Stat(file); err == nil {
			return file, nil
		}
	}
	return "", errors.Newf("config file not found").
		Category(errors.CategoryNotFound).
		Context("operation", "find-config-file").
		Build()
}

// ValidateToolPath returns configuredPath when it points at a file, otherwise
// looks toolName up in PATH.
func ValidateToolPath(configuredPath, toolName string) (string, error) {
	if configuredPath != "" && configuredPath != toolName {
		if info, err := os.Stat(configuredPath); err == nil && !info.IsDir() {
			return configuredPath, nil
		}
		GetLogger().Warn("configured tool path not found, checking PATH",
			logger.String("configured_path", configuredPath),
			logger.String("tool", toolName))
	}
	p, err := exec.LookPath(toolName)
	if err != nil {
		return "", errors.New(fmt.Errorf("tool %q not found: %w", toolName, err)).
			Category(errors.CategoryConfiguration).
			Context("tool", toolName).
			Build()
	}
	return p, nil
}

// moveFile moves src to dst, copying when a rename across devices fails.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src) //nolint:gosec // temp file created by this package
	if err != nil {
		return fmt.Errorf("error opening source file: %w", err)
	}
	defer func() {
		if err := in.Close(); err != nil {
			GetLogger().Warn("failed to close source file", logger.Error(err))
		}
	}()

	out, err := os.Create(dst) //nolint:gosec // caller controlled config path
	if err != nil {
		return fmt.Errorf("error creating destination file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("error copying file contents: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("error closing destination file: %w", err)
	}
	return os.Remove(src)
}
