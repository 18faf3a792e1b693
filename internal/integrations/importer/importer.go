package importer

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bartek5186/stockhub/internal/auth"
	"github.com/bartek5186/stockhub/internal/catalog"
	"github.com/bartek5186/stockhub/internal/db"
	"github.com/bartek5186/stockhub/internal/integrations"
	"github.com/bartek5186/stockhub/internal/ledger"
	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
	"gorm.io/gorm"
)

const ReferenceType = "import"

type Config struct {
	WatchDir   string `json:"watch_dir"`   // e.g. ~/stockhub/imports
	PollSec    int    `json:"poll_sec"`    // 5-10s in dev
	FilePrefix string `json:"file_prefix"` // default "stock_"
}

type Importer struct {
	log     zerolog.Logger
	cfg     Config
	db      *gorm.DB
	ledger  *ledger.Service
	catalog *catalog.Service
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// one <item> of the export
type xmlItem struct {
	SKU       string        `xml:"sku"`
	KatanaID  string        `xml:"katana_id"`
	Locations []xmlLocation `xml:"locations>location"`
}

type xmlLocation struct {
	WarehouseCode string `xml:"warehouse_code"`
	OnHand        string `xml:"on_hand"` // may use a decimal comma
}

// Result counts what one file did to the ledger.
type Result struct {
	ImportID uint   `json:"importId"`
	ExportID string `json:"exportId"`
	Items    int    `json:"items"`
	Applied  int    `json:"applied"`
	Skipped  int    `json:"skipped"`
}

func New(log zerolog.Logger, cfg Config, deps integrations.Deps) (*Importer, error) {
	if deps.DB == nil || deps.Ledger == nil || deps.Catalog == nil {
		return nil, errors.New("importer: database, ledger and catalog are required")
	}
	if cfg.FilePrefix == "" {
		cfg.FilePrefix = "stock_"
	}
	return &Importer{
		log:     log,
		cfg:     cfg,
		db:      deps.DB,
		ledger:  deps.Ledger,
		catalog: deps.Catalog,
		now:     time.Now,
	}, nil
}

func (i *Importer) Name() string { return "importer" }

func (i *Importer) Start(ctx context.Context) error {
	i.ctx, i.cancel = context.WithCancel(ctx)
	i.log.Info().Str("integration", i.Name()).Msg("start")

	dir := expandHome(i.cfg.WatchDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("importer: watch dir: %w", err)
	}
	ticker := time.NewTicker(i.interval())
	defer ticker.Stop()

	// first pass right away
	i.ScanOnce(i.ctx, dir)

	for {
		select {
		case <-i.ctx.Done():
			i.log.Info().Str("integration", i.Name()).Msg("stop")
			return nil
		case <-ticker.C:
			i.ScanOnce(i.ctx, dir)
			ticker.Reset(i.interval())
		}
	}
}

func (i *Importer) Stop() {
	if i.cancel != nil {
		i.cancel()
	}
}

func (i *Importer) interval() time.Duration {
	if i.cfg.PollSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(i.cfg.PollSec) * time.Second
}

// ScanOnce processes every export in dir that is not done yet.
func (i *Importer) ScanOnce(ctx context.Context, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		i.log.Error().Err(err).Str("dir", dir).Msg("cannot read directory")
		return
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, i.cfg.FilePrefix) || !strings.EqualFold(filepath.Ext(name), ".xml") {
			continue
		}
		res, err := i.ImportFile(ctx, filepath.Join(dir, name))
		switch {
		case errors.Is(err, errAlreadyDone):
			i.log.Debug().Str("file", name).Msg("already imported, skipping")
		case err != nil:
			i.log.Error().Err(err).Str("file", name).Msg("import failed")
		default:
			i.log.Info().
				Str("file", name).
				Uint("import_id", res.ImportID).
				Str("export_id", res.ExportID).
				Int("applied", res.Applied).
				Int("skipped", res.Skipped).
				Msg("import done")
		}
	}
}

var errAlreadyDone = errors.New("file already imported")

// ImportFile registers and applies one export file. A file whose content,
// name or export id was imported successfully before is not applied again.
func (i *Importer) ImportFile(ctx context.Context, fullPath string) (Result, error) {
	name := filepath.Base(fullPath)
	rec, already, err := i.registerFile(ctx, fullPath, name)
	if err != nil {
		return Result{}, fmt.Errorf("register %s: %w", name, err)
	}
	if already {
		if rec.Status == db.ImportDone {
			return Result{ImportID: rec.ImportID, ExportID: rec.ExportID}, errAlreadyDone
		}
		i.log.Warn().Str("file", name).Uint("import_id", rec.ImportID).
			Int("status", rec.Status).Msg("file known but not done, processing again")
	}

	res, err := i.processFile(ctx, rec, fullPath)
	now := i.now().UTC()
	if err != nil {
		_ = i.db.WithContext(ctx).Model(&db.ImportFile{}).Where("import_id = ?", rec.ImportID).
			Updates(map[string]any{"status": db.ImportError, "last_error": err.Error(), "processed_at": now}).Error
		return res, err
	}
	err = i.db.WithContext(ctx).Model(&db.ImportFile{}).Where("import_id = ?", rec.ImportID).
		Updates(map[string]any{
			"status":       db.ImportDone,
			"export_id":    res.ExportID,
			"applied":      res.Applied,
			"skipped":      res.Skipped,
			"last_error":   "",
			"processed_at": now,
		}).Error
	return res, err
}

func (i *Importer) registerFile(ctx context.Context, fullPath, name string) (*db.ImportFile, bool, error) {
	fi, err := os.Stat(fullPath)
	if err != nil {
		return nil, false, err
	}
	h, err := fileSHA256(fullPath)
	if err != nil {
		return nil, false, err
	}
	exportID, _ := readExportID(fullPath)

	gdb := i.db.WithContext(ctx)
	var existing db.ImportFile
	err = gdb.Where("sha256 = ? OR filename = ? OR (export_id <> '' AND export_id = ?)", h, name, exportID).
		Take(&existing).Error
	if err == nil {
		return &existing, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	rec := db.ImportFile{
		Filename:  name,
		ExportID:  exportID,
		SHA256:    h,
		SizeBytes: fi.Size(),
		Status:    db.ImportPending,
	}
	if err := gdb.Create(&rec).Error; err != nil {
		return nil, false, err
	}
	return &rec, false, nil
}

func (i *Importer) processFile(ctx context.Context, rec *db.ImportFile, fullPath string) (Result, error) {
	res := Result{ImportID: rec.ImportID, ExportID: rec.ExportID}
	f, err := os.Open(fullPath)
	if err != nil {
		return res, err
	}
	defer f.Close()

	// exports come in windows-1250 / iso-8859-2 as well as utf-8
	dec := xml.NewDecoder(bufio.NewReader(f))
	dec.CharsetReader = func(cs string, in io.Reader) (io.Reader, error) {
		return charset.NewReaderLabel(normalizeCharset(cs), in)
	}

	ctx = auth.WithActor(ctx, auth.SystemActor)
	ref := ledger.Reference{Type: ReferenceType, ID: rec.Filename}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch strings.ToLower(se.Name.Local) {
		case "export_id":
			var v string
			if err := dec.DecodeElement(&v, &se); err != nil {
				return res, err
			}
			if v = strings.TrimSpace(v); v != "" {
				res.ExportID = v
			}
		case "item":
			var it xmlItem
			if err := dec.DecodeElement(&it, &se); err != nil {
				return res, err
			}
			res.Items++
			applied, skipped, err := i.applyItem(ctx, it, ref)
			if err != nil {
				return res, err
			}
			res.Applied += applied
			res.Skipped += skipped
		}
	}
	return res, nil
}

// applyItem books the counted quantities of one item. Unknown SKUs,
// unknown warehouses and unreadable quantities are skipped; ledger errors
// other than those abort the file.
func (i *Importer) applyItem(ctx context.Context, it xmlItem, ref ledger.Reference) (applied, skipped int, err error) {
	sku := strings.TrimSpace(it.SKU)
	item, err := i.catalog.GetItemBySKU(ctx, sku)
	if errors.Is(err, catalog.ErrItemNotFound) {
		i.log.Warn().Str("sku", sku).Msg("unknown sku in export, skipped")
		return 0, len(it.Locations), nil
	}
	if err != nil {
		return 0, 0, err
	}

	for _, loc := range it.Locations {
		qty, ok := parseQty(loc.OnHand)
		if !ok {
			i.log.Warn().Str("sku", sku).Str("warehouse", loc.WarehouseCode).Str("on_hand", loc.OnHand).Msg("bad quantity, skipped")
			skipped++
			continue
		}
		wh, err := i.catalog.WarehouseByCode(ctx, loc.WarehouseCode)
		if errors.Is(err, catalog.ErrWarehouseNotFound) {
			i.log.Warn().Str("sku", sku).Str("warehouse", loc.WarehouseCode).Msg("unknown warehouse in export, skipped")
			skipped++
			continue
		}
		if err != nil {
			return applied, skipped, err
		}

		_, _, err = i.ledger.SetStockCount(ctx, ledger.CountInput{
			ItemID:      item.ID,
			WarehouseID: wh.ID,
			Counted:     qty,
			Reason:      "katana stock export",
			Reference:   ref,
		})
		if errors.Is(err, ledger.ErrBelowReserved) {
			i.log.Warn().Err(err).Str("sku", sku).Str("warehouse", wh.Code).Msg("count below reserved, skipped")
			skipped++
			continue
		}
		if err != nil {
			return applied, skipped, fmt.Errorf("sku %s @ %s: %w", sku, wh.Code, err)
		}
		applied++
	}

	if err := i.markKatanaSynced(ctx, item.ID, strings.TrimSpace(it.KatanaID)); err != nil {
		return applied, skipped, err
	}
	return applied, skipped, nil
}

func parseQty(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// readExportID reads only the leading <export_id> of a file.
func readExportID(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	dec := xml.NewDecoder(f)
	dec.CharsetReader = func(cs string, in io.Reader) (io.Reader, error) {
		return charset.NewReaderLabel(normalizeCharset(cs), in)
	}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "export_id":
			var v string
			if err := dec.DecodeElement(&v, &se); err != nil {
				return "", err
			}
			return strings.TrimSpace(v), nil
		case "items":
			// the id comes first; stop before reading the body
			return "", nil
		}
	}
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// normalizeCharset maps odd labels to names charset.NewReaderLabel knows.
func normalizeCharset(cs string) string {
	c := strings.TrimSpace(strings.ToLower(cs))
	switch c {
	case "latin ii", "latin-2", "latin2", "iso8859-2", "iso_8859-2":
		return "iso-8859-2"
	case "cp1250", "windows1250", "win-1250":
		return "windows-1250"
	default:
		return c
	}
}

func factory(log zerolog.Logger, raw json.RawMessage, deps integrations.Deps) (integrations.Integration, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return New(log, cfg, deps)
}

func init() {
	integrations.Register("importer", factory)
}
