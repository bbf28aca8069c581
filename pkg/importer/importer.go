package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tealeg/xlsx/v3"
	"gopkg.in/yaml.v3"
)

// ImportOptions defines the configuration for Excel import operations
type ImportOptions struct {
	MappingPath string // default "configs/mapping/equipment_units.yaml"
	DryRun      bool
	MaxErrors   int // default 50
}

// RowError represents an error that occurred during row processing
type RowError struct {
	Sheet   string `json:"sheet"`
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// SheetSummary contains the import statistics for a single sheet
type SheetSummary struct {
	Name     string     `json:"name"`
	Inserted int        `json:"inserted"`
	Updated  int        `json:"updated"`
	Skipped  int        `json:"skipped"`
	Errors   int        `json:"errors"`
	Samples  []RowError `json:"error_samples,omitempty"`
}

// ImportSummary contains the overall import statistics
type ImportSummary struct {
	Inserted int            `json:"inserted"`
	Updated  int            `json:"updated"`
	Skipped  int            `json:"skipped"`
	Errors   int            `json:"errors"`
	Sheets   []SheetSummary `json:"sheets"`
	DryRun   bool           `json:"dry_run"`
}

// MappingConfig represents the YAML mapping configuration
type MappingConfig struct {
	Version       int                    `yaml:"version"`
	DefaultStatus string                 `yaml:"default_status"`
	Sheets        map[string]SheetConfig `yaml:"sheets"`
}

// SheetConfig maps one worksheet onto units of a single asset type.
// The asset type is matched by name and must already exist.
type SheetConfig struct {
	AssetType string                  `yaml:"asset_type"`
	Aliases   map[string][]string     `yaml:"aliases"`
	Columns   map[string]ColumnConfig `yaml:"columns"`
}

type ColumnConfig struct {
	Field string `yaml:"field"`
	Type  string `yaml:"type"`
}

// unitFields lists the asset_units columns the importer may write
var unitFields = map[string]bool{
	"tag_code": true,
	"serial":   true,
	"status":   true,
	"notes":    true,
}

// ImportExcel processes an Excel workbook and upserts asset units by tag code
func ImportExcel(ctx context.Context, db *pgxpool.Pool, r io.Reader, opts ImportOptions) (ImportSummary, error) {
	summary := ImportSummary{
		DryRun: opts.DryRun,
		Sheets: []SheetSummary{},
	}

	// Set defaults
	if opts.MappingPath == "" {
		opts.MappingPath = "configs/mapping/equipment_units.yaml"
	}
	if opts.MaxErrors == 0 {
		opts.MaxErrors = 50
	}

	// Load mapping configuration
	mapping, err := LoadMappingConfig(opts.MappingPath)
	if err != nil {
		return summary, fmt.Errorf("failed to load mapping config: %w", err)
	}

	// Read Excel file from reader - need to read all data first since xlsx.OpenReaderAt requires io.ReaderAt
	data, err := io.ReadAll(r)
	if err != nil {
		return summary, fmt.Errorf("failed to read Excel file: %w", err)
	}

	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return summary, fmt.Errorf("failed to open Excel file: %w", err)
	}

	conn, err := db.Acquire(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to acquire database connection: %w", err)
	}
	defer conn.Release()

	// Process each sheet
	for _, sheet := range xlFile.Sheets {
		sheetConfig, exists := mapping.Sheets[sheet.Name]
		if !exists {
			continue // Skip sheets without mapping
		}

		sheetSummary := processSheet(ctx, conn, sheet, sheetConfig, opts, mapping.DefaultStatus)
		summary.Sheets = append(summary.Sheets, sheetSummary)

		// Accumulate totals
		summary.Inserted += sheetSummary.Inserted
		summary.Updated += sheetSummary.Updated
		summary.Skipped += sheetSummary.Skipped
		summary.Errors += sheetSummary.Errors

		// Stop if too many errors
		if summary.Errors > opts.MaxErrors {
			return summary, fmt.Errorf("too many errors (%d), stopping import", summary.Errors)
		}
	}

	return summary, nil
}

// LoadMappingConfig reads the YAML mapping file. A missing file falls back
// to the built-in default mapping so ad-hoc imports still work.
func LoadMappingConfig(path string) (*MappingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultMappingConfig(), nil
		}
		return nil, err
	}

	var cfg MappingConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse mapping config: %w", err)
	}
	if len(cfg.Sheets) == 0 {
		return nil, errors.New("mapping config defines no sheets")
	}
	if cfg.DefaultStatus == "" {
		cfg.DefaultStatus = "READY"
	}
	return &cfg, nil
}

func defaultMappingConfig() *MappingConfig {
	return &MappingConfig{
		Version:       1,
		DefaultStatus: "READY",
		Sheets: map[string]SheetConfig{
			"Units": {
				AssetType: "Projector",
				Aliases: map[string][]string{
					"TagCode": {"Tag Code", "Asset Tag", "Tag"},
					"Serial":  {"Serial Number", "S/N"},
				},
				Columns: map[string]ColumnConfig{
					"TagCode": {Field: "tag_code", Type: "TEXT"},
					"Serial":  {Field: "serial", Type: "TEXT?"},
					"Status":  {Field: "status", Type: "TEXT?"},
					"Notes":   {Field: "notes", Type: "TEXT?"},
				},
			},
		},
	}
}

func processSheet(ctx context.Context, conn *pgxpool.Conn, sheet *xlsx.Sheet, config SheetConfig, opts ImportOptions, defaultStatus string) SheetSummary {
	summary := SheetSummary{Name: sheet.Name}

	// Resolve the asset type once; every row in the sheet belongs to it
	assetTypeID, err := findAssetType(ctx, conn, config.AssetType)
	if err != nil {
		summary.Errors++
		summary.Samples = append(summary.Samples, RowError{
			Sheet:   sheet.Name,
			Row:     0,
			Message: err.Error(),
		})
		return summary
	}

	// Get header row (first row)
	headerRow, err := sheet.Row(0)
	if err != nil {
		summary.Errors++
		summary.Samples = append(summary.Samples, RowError{
			Sheet:   sheet.Name,
			Row:     1,
			Message: "Failed to read header row: " + err.Error(),
		})
		return summary
	}

	headerMap := parseHeaderRow(headerRow, config.Aliases)

	// Process data rows starting from row 1
	rowIdx := 1
	for {
		row, err := sheet.Row(rowIdx)
		if err != nil {
			break // No more rows
		}

		rowData := extractRowData(row, headerMap)

		// Skip if no data in row
		if len(rowData) == 0 {
			if rowIdx > sheet.MaxRow {
				break
			}
			summary.Skipped++
			rowIdx++
			continue
		}

		unitData, err := buildUnitData(rowData, config, defaultStatus)
		if err != nil {
			summary.Errors++
			summary.Samples = append(summary.Samples, RowError{
				Sheet:   sheet.Name,
				Row:     rowIdx + 1,
				Message: err.Error(),
			})
			rowIdx++
			continue
		}

		existingID, err := findExistingUnit(ctx, conn, assetTypeID, unitData)
		if err != nil {
			summary.Errors++
			summary.Samples = append(summary.Samples, RowError{
				Sheet:   sheet.Name,
				Row:     rowIdx + 1,
				Message: err.Error(),
			})
			rowIdx++
			continue
		}

		if existingID > 0 {
			if !opts.DryRun {
				if err := updateUnit(ctx, conn, existingID, unitData); err != nil {
					summary.Errors++
					summary.Samples = append(summary.Samples, RowError{
						Sheet:   sheet.Name,
						Row:     rowIdx + 1,
						Message: err.Error(),
					})
					rowIdx++
					continue
				}
			}
			summary.Updated++
		} else {
			if !opts.DryRun {
				if err := insertUnit(ctx, conn, assetTypeID, unitData); err != nil {
					summary.Errors++
					summary.Samples = append(summary.Samples, RowError{
						Sheet:   sheet.Name,
						Row:     rowIdx + 1,
						Message: err.Error(),
					})
					rowIdx++
					continue
				}
			}
			summary.Inserted++
		}

		rowIdx++
	}

	return summary
}

// parseHeaderRow maps canonical column names (upper-cased) to cell indexes,
// resolving aliases onto the canonical name
func parseHeaderRow(headerRow *xlsx.Row, aliases map[string][]string) map[string]int {
	headerMap := make(map[string]int)

	colIdx := 0
	for {
		cell := headerRow.GetCell(colIdx)
		if cell == nil {
			break
		}
		headerName := strings.TrimSpace(cell.String())
		if headerName == "" {
			if colIdx > 255 {
				break
			}
			colIdx++
			continue
		}

		canonical := strings.ToUpper(headerName)
		for field, names := range aliases {
			for _, alias := range names {
				if strings.EqualFold(alias, headerName) {
					canonical = strings.ToUpper(field)
					break
				}
			}
		}
		headerMap[canonical] = colIdx
		colIdx++
	}

	return headerMap
}

func extractRowData(row *xlsx.Row, headerMap map[string]int) map[string]string {
	rowData := make(map[string]string)
	for headerName, colIdx := range headerMap {
		cell := row.GetCell(colIdx)
		if cell == nil {
			continue
		}
		value := strings.TrimSpace(cell.String())
		if value != "" {
			rowData[headerName] = value
		}
	}
	return rowData
}

func buildUnitData(rowData map[string]string, config SheetConfig, defaultStatus string) (map[string]interface{}, error) {
	unitData := map[string]interface{}{
		"status": defaultStatus,
	}

	for headerName, columnConfig := range config.Columns {
		value, exists := rowData[strings.ToUpper(headerName)]
		if !exists || value == "" {
			if strings.HasSuffix(columnConfig.Type, "?") {
				continue
			}
			return nil, fmt.Errorf("missing required column %s", headerName)
		}

		parsedValue, err := parseValue(value, columnConfig.Type)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %v", headerName, err)
		}

		if !unitFields[columnConfig.Field] {
			return nil, fmt.Errorf("unknown unit field %q in mapping", columnConfig.Field)
		}
		unitData[columnConfig.Field] = parsedValue
	}

	if _, ok := unitData["tag_code"]; !ok {
		return nil, errors.New("row has no tag_code")
	}
	if status, ok := unitData["status"].(string); ok {
		unitData["status"] = strings.ToUpper(status)
	}

	return unitData, nil
}

func parseValue(value, valueType string) (interface{}, error) {
	valueType = strings.TrimSuffix(valueType, "?") // Remove optional marker

	switch valueType {
	case "TEXT", "string":
		return value, nil
	case "INT", "int":
		return strconv.Atoi(value)
	case "BOOL", "bool":
		value = strings.ToLower(value)
		return value == "yes" || value == "y" || value == "true" || value == "1", nil
	case "TIMESTAMP", "timestamp":
		// Try common date formats
		formats := []string{
			"2006-01-02",
			"2006-01-02 15:04:05",
			"01/02/2006",
			"01/02/2006 15:04:05",
		}
		for _, format := range formats {
			if t, err := time.Parse(format, value); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("invalid timestamp format: %s", value)
	default:
		return value, nil
	}
}

func findAssetType(ctx context.Context, conn *pgxpool.Conn, name string) (int64, error) {
	var id int64
	err := conn.QueryRow(ctx,
		"SELECT id FROM asset_types WHERE name = $1", name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("asset type %q does not exist", name)
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func findExistingUnit(ctx context.Context, conn *pgxpool.Conn, assetTypeID int64, unitData map[string]interface{}) (int64, error) {
	var id int64
	err := conn.QueryRow(ctx,
		"SELECT id FROM asset_units WHERE tag_code = $1 AND deleted_at IS NULL",
		unitData["tag_code"]).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	// Tag codes are globally unique; a clash across types is a data error
	var typeID int64
	if err := conn.QueryRow(ctx,
		"SELECT asset_type_id FROM asset_units WHERE id = $1", id).Scan(&typeID); err != nil {
		return 0, err
	}
	if typeID != assetTypeID {
		return 0, fmt.Errorf("tag code %v already belongs to a different asset type", unitData["tag_code"])
	}
	return id, nil
}

func insertUnit(ctx context.Context, conn *pgxpool.Conn, assetTypeID int64, unitData map[string]interface{}) error {
	fields := []string{"asset_type_id"}
	values := []interface{}{assetTypeID}
	placeholders := []string{"$1"}
	argIndex := 2

	for field, value := range unitData {
		fields = append(fields, field)
		values = append(values, value)
		placeholders = append(placeholders, fmt.Sprintf("$%d", argIndex))
		argIndex++
	}

	query := fmt.Sprintf(`
		INSERT INTO asset_units (%s)
		VALUES (%s)
	`, strings.Join(fields, ", "), strings.Join(placeholders, ", "))

	_, err := conn.Exec(ctx, query, values...)
	return err
}

func updateUnit(ctx context.Context, conn *pgxpool.Conn, unitID int64, unitData map[string]interface{}) error {
	setParts := []string{}
	values := []interface{}{}
	argIndex := 1

	for field, value := range unitData {
		if field == "tag_code" {
			continue // natural key, never rewritten
		}
		setParts = append(setParts, fmt.Sprintf("%s = $%d", field, argIndex))
		values = append(values, value)
		argIndex++
	}

	if len(setParts) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE asset_units SET %s, updated_at = now()
		WHERE id = $%d
	`, strings.Join(setParts, ", "), argIndex)
	values = append(values, unitID)

	_, err := conn.Exec(ctx, query, values...)
	return err
}
