package archive

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lukemcguire/linkrot/urlutil"
)

// URLFileName names the file a URL list for base and year is saved to,
// e.g. "x.substack.com_archive_urls_2024.txt".
func URLFileName(baseURL string, year int) string {
	name := urlutil.HostSlug(baseURL) + "_archive_urls"
	if year > 0 {
		name += "_" + strconv.Itoa(year)
	}
	return name + ".txt"
}

// ReadURLFile reads a newline-delimited URL list. Blank lines and lines
// starting with '#' are skipped; duplicates are dropped, first occurrence
// wins.
func ReadURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url file: %w", err)
	}
	defer f.Close()

	var urls []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url file %s: %w", path, err)
	}
	if urls == nil {
		urls = []string{}
	}
	return urls, nil
}

// WriteURLFile writes urls one per line. The file is written to a
// temporary name in the same directory and renamed into place.
func WriteURLFile(path string, urls []string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create url file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	for _, u := range urls {
		if _, werr := w.WriteString(u + "\n"); werr != nil {
			_ = tmp.Close()
			return fmt.Errorf("write url file: %w", werr)
		}
	}
	if ferr := w.Flush(); ferr != nil {
		_ = tmp.Close()
		return fmt.Errorf("write url file: %w", ferr)
	}
	if cerr := tmp.Close(); cerr != nil {
		return fmt.Errorf("close url file: %w", cerr)
	}
	if rerr := os.Rename(tmp.Name(), path); rerr != nil {
		return fmt.Errorf("rename url file to %s: %w", path, rerr)
	}
	return nil
}
