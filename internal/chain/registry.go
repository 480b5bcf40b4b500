package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-getter"
)

// KeplrRegistrySource is the go-getter address of the public Cosmos chain
// registry.
const KeplrRegistrySource = "github.com/chainapsis/keplr-chain-registry//cosmos"

// DownloadRegistry fetches a chain registry directory from src into dst.
func DownloadRegistry(ctx context.Context, src, dst string) error {
	if src == "" {
		src = KeplrRegistrySource
	}
	client := getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Mode: getter.ClientModeDir,
		Detectors: []getter.Detector{
			&getter.GitHubDetector{},
			&getter.FileDetector{},
		},
		Getters: map[string]getter.Getter{
			"git":  &getter.GitGetter{},
			"file": &getter.FileGetter{Copy: true},
		},
	}
	if err := client.Get(); err != nil {
		return fmt.Errorf("failed to download chain registry %s: %w", src, err)
	}
	return nil
}

// LoadRegistryDir reads every *.json chain description in dir, in file
// name order.
func LoadRegistryDir(dir string) ([]ChainInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	infos := make([]ChainInfo, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		var info ChainInfo
		if err := json.Unmarshal(data, &info); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// SyncRegistry downloads src into dst and adds every valid chain to s. It
// returns the number of chains added.
func (s *Store) SyncRegistry(ctx context.Context, src, dst string) (int, error) {
	if err := DownloadRegistry(ctx, src, dst); err != nil {
		return 0, err
	}
	infos, err := LoadRegistryDir(dst)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, info := range infos {
		if err := s.Add(info); err != nil {
			s.log.Debug("skipping registry chain", "chain", info.ChainID, "err", err)
			continue
		}
		added++
	}
	s.log.Info("chain registry loaded", "source", src, "chains", added)
	return added, nil
}
