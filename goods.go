package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// goodsCatalog maps Buff goods ids to market hash names. Sale records
// reference goods ids only; the catalog turns them back into item names
// for logs and status lines.
type goodsCatalog struct {
	Items []goodsEntry `json:"items"`
}

type goodsEntry struct {
	ID             int64  `json:"id"`
	MarketHashName string `json:"market_hash_name"`
}

var (
	goodsNames map[int64]string
	goodsLock  sync.RWMutex
)

const goodsBackupFile = "static/goods_latest.json"

// LoadGoods fetches the goods catalog from Buff, falling back to the
// last locally saved copy when the fetch fails
func LoadGoods(cfg *Config) error {
	LogInfo("Loading goods catalog...")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(cfg.GoodsURL)
	if err != nil {
		LogError("Failed to fetch goods catalog: %v", err)
		return loadGoodsFromFile()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		LogError("Goods catalog returned non-OK status: %d", resp.StatusCode)
		return loadGoodsFromFile()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		LogError("Failed to read goods catalog response: %v", err)
		return loadGoodsFromFile()
	}

	if err := applyGoods(body); err != nil {
		LogError("Failed to parse goods catalog: %v", err)
		return loadGoodsFromFile()
	}

	saveGoodsToFile(body)
	return nil
}

func applyGoods(body []byte) error {
	var env buffEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return err
	}
	if env.Code != buffCodeOK {
		return fmt.Errorf("goods catalog returned code %s", env.Code)
	}

	var catalog goodsCatalog
	if err := json.Unmarshal(env.Data, &catalog); err != nil {
		return err
	}
	if len(catalog.Items) == 0 {
		return fmt.Errorf("goods catalog is empty")
	}

	names := make(map[int64]string, len(catalog.Items))
	for _, entry := range catalog.Items {
		names[entry.ID] = entry.MarketHashName
	}

	goodsLock.Lock()
	goodsNames = names
	goodsLock.Unlock()

	LogInfo("Goods catalog loaded with %d entries", len(names))
	return nil
}

func loadGoodsFromFile() error {
	LogInfo("Attempting to load goods catalog from local file...")

	body, err := os.ReadFile(goodsBackupFile)
	if err != nil {
		return fmt.Errorf("failed to load goods catalog and no local copy found: %v", err)
	}
	return applyGoods(body)
}

func saveGoodsToFile(body []byte) {
	if err := os.MkdirAll("static", 0755); err != nil {
		LogWarning("Failed to create static directory: %v", err)
		return
	}
	if err := os.WriteFile(goodsBackupFile, body, 0644); err != nil {
		LogWarning("Failed to save goods catalog backup: %v", err)
	}
}

// goodsName resolves a goods id to its market hash name, or "" when the
// catalog has no entry for it
func goodsName(goodsID int64) string {
	goodsLock.RLock()
	defer goodsLock.RUnlock()
	return goodsNames[goodsID]
}

// describeSale renders a sale's items for logs and status lines,
// preferring catalog names over raw asset ids
func describeSale(sale SaleRecord) string {
	parts := make([]string, 0, len(sale.Items))
	for _, item := range sale.Items {
		if name := goodsName(item.GoodsID); name != "" {
			parts = append(parts, name)
		} else {
			parts = append(parts, "asset "+item.AssetID)
		}
	}
	return strings.Join(parts, ", ")
}

// StartGoodsUpdater loads the catalog and refreshes it periodically
func StartGoodsUpdater(cfg *Config) {
	if err := LoadGoods(cfg); err != nil {
		LogWarning("Initial goods catalog load failed: %v", err)
	}

	go func() {
		ticker := time.NewTicker(cfg.GoodsUpdateInterval)
		defer ticker.Stop()

		for range ticker.C {
			if err := LoadGoods(cfg); err != nil {
				LogWarning("Goods catalog update failed: %v", err)
			}
		}
	}()
}
