// Irrigation Database CLI Tool
// Provides command-line access to the irrigation controller database
package main

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
)

var (
	dbPath  string
	rootCmd = &cobra.Command{
		Use:   "agri-db",
		Short: "Irrigation Database CLI",
		Long:  "Command-line tool for inspecting the smart irrigation controller database.",
	}

	devicesCmd = &cobra.Command{
		Use:   "devices [farm-id]",
		Short: "List registered devices",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listDevices,
	}

	readingsCmd = &cobra.Command{
		Use:   "readings [hardware-id]",
		Short: "Show sensor readings",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showReadings,
	}

	schedulesCmd = &cobra.Command{
		Use:   "schedules [farm-id]",
		Short: "Show irrigation schedules",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showSchedules,
	}

	healthCmd = &cobra.Command{
		Use:   "health [crop-id]",
		Short: "Show crop health snapshots",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showHealth,
	}

	notificationsCmd = &cobra.Command{
		Use:   "notifications [farm-id]",
		Short: "Show notifications",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showNotifications,
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		RunE:  showStats,
	}

	queryCmd = &cobra.Command{
		Use:   "query [sql]",
		Short: "Execute a raw SQL query",
		Args:  cobra.ExactArgs(1),
		RunE:  executeQuery,
	}

	limit int
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "database", "d", "/var/lib/agsys/irrigation.db", "Database file path")

	for _, c := range []*cobra.Command{readingsCmd, schedulesCmd, healthCmd, notificationsCmd} {
		c.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records to show")
	}

	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(readingsCmd)
	rootCmd.AddCommand(schedulesCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(notificationsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(queryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openDB() (*sql.DB, error) {
	return sql.Open("sqlite3", dbPath+"?mode=ro")
}

// filtered picks the WHERE clause variant when an id argument was given
func filtered(args []string, base, where, tail string) (string, []any) {
	if len(args) > 0 {
		return base + " WHERE " + where + " " + tail, []any{args[0], limit}
	}
	return base + " " + tail, []any{limit}
}

func listDevices(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	query := `SELECT hardware_id, farm_id, device_type, name, status, battery_level, last_seen_at FROM devices`
	var queryArgs []any
	if len(args) > 0 {
		query += ` WHERE farm_id = ?`
		queryArgs = append(queryArgs, args[0])
	}
	query += ` ORDER BY last_seen_at DESC`

	rows, err := db.Query(query, queryArgs...)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HARDWARE ID\tFARM\tTYPE\tNAME\tSTATUS\tBATTERY\tLAST SEEN")
	fmt.Fprintln(w, "-----------\t----\t----\t----\t------\t-------\t---------")

	for rows.Next() {
		var hardwareID, farmID, deviceType, name, status string
		var battery sql.NullInt64
		var lastSeen sql.NullTime

		if err := rows.Scan(&hardwareID, &farmID, &deviceType, &name, &status, &battery, &lastSeen); err != nil {
			return err
		}

		battStr := "-"
		if battery.Valid {
			battStr = fmt.Sprintf("%d%%", battery.Int64)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			hardwareID, shortID(farmID), deviceType, name, status, battStr, formatTime(lastSeen, "2006-01-02 15:04"))
	}
	w.Flush()
	return rows.Err()
}

func showReadings(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	query, queryArgs := filtered(args, `
		SELECT d.hardware_id, r.soil_moisture, r.soil_temperature, r.air_temperature, r.air_humidity, r.recorded_at
		FROM sensor_readings r JOIN devices d ON d.id = r.device_id`,
		`d.hardware_id = ?`, `ORDER BY r.recorded_at DESC LIMIT ?`)

	rows, err := db.Query(query, queryArgs...)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tMOISTURE\tSOIL TEMP\tAIR TEMP\tHUMIDITY\tTIME")
	fmt.Fprintln(w, "------\t--------\t---------\t--------\t--------\t----")

	for rows.Next() {
		var hardwareID string
		var moisture, soilTemp, airTemp, humidity sql.NullFloat64
		var recordedAt sql.NullTime

		if err := rows.Scan(&hardwareID, &moisture, &soilTemp, &airTemp, &humidity, &recordedAt); err != nil {
			return err
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			hardwareID, formatFloat(moisture, "%.1f%%"), formatFloat(soilTemp, "%.1f°C"),
			formatFloat(airTemp, "%.1f°C"), formatFloat(humidity, "%.0f%%"),
			formatTime(recordedAt, "01-02 15:04"))
	}
	w.Flush()
	return rows.Err()
}

func showSchedules(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	query, queryArgs := filtered(args, `
		SELECT id, farm_id, status, triggered_by, scheduled_time, duration_minutes, water_volume_liters, actual_volume_liters
		FROM irrigation_schedules`,
		`farm_id = ?`, `ORDER BY created_at DESC LIMIT ?`)

	rows, err := db.Query(query, queryArgs...)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFARM\tSTATUS\tTRIGGER\tSCHEDULED\tMIN\tPLANNED (L)\tACTUAL (L)")
	fmt.Fprintln(w, "--\t----\t------\t-------\t---------\t---\t-----------\t----------")

	for rows.Next() {
		var id, farmID, status, triggeredBy string
		var scheduled sql.NullTime
		var duration int
		var planned, actual sql.NullFloat64

		if err := rows.Scan(&id, &farmID, &status, &triggeredBy, &scheduled, &duration, &planned, &actual); err != nil {
			return err
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			shortID(id), shortID(farmID), status, triggeredBy, formatTime(scheduled, "01-02 15:04"),
			duration, formatFloat(planned, "%.0f"), formatFloat(actual, "%.0f"))
	}
	w.Flush()
	return rows.Err()
}

func showHealth(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	query, queryArgs := filtered(args, `
		SELECT h.crop_id, c.crop_type, h.ndvi_value, h.health_score, h.health_status, h.data_source, h.recorded_at
		FROM crop_health h JOIN crops c ON c.id = h.crop_id`,
		`h.crop_id = ?`, `ORDER BY h.recorded_at DESC LIMIT ?`)

	rows, err := db.Query(query, queryArgs...)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CROP\tTYPE\tNDVI\tSCORE\tSTATUS\tSOURCE\tTIME")
	fmt.Fprintln(w, "----\t----\t----\t-----\t------\t------\t----")

	for rows.Next() {
		var cropID, cropType, status string
		var ndvi float64
		var score int
		var source sql.NullString
		var recordedAt sql.NullTime

		if err := rows.Scan(&cropID, &cropType, &ndvi, &score, &status, &source, &recordedAt); err != nil {
			return err
		}

		fmt.Fprintf(w, "%s\t%s\t%.2f\t%d\t%s\t%s\t%s\n",
			shortID(cropID), cropType, ndvi, score, status, orDash(source.String),
			formatTime(recordedAt, "01-02 15:04"))
	}
	w.Flush()
	return rows.Err()
}

func showNotifications(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	query, queryArgs := filtered(args, `
		SELECT farm_id, type, priority, title, is_read, created_at FROM notifications`,
		`farm_id = ?`, `ORDER BY created_at DESC, id DESC LIMIT ?`)

	rows, err := db.Query(query, queryArgs...)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FARM\tTYPE\tPRIORITY\tTITLE\tREAD\tTIME")
	fmt.Fprintln(w, "----\t----\t--------\t-----\t----\t----")

	for rows.Next() {
		var farmID, kind, priority, title string
		var isRead bool
		var createdAt sql.NullTime

		if err := rows.Scan(&farmID, &kind, &priority, &title, &isRead, &createdAt); err != nil {
			return err
		}

		readStr := "N"
		if isRead {
			readStr = "Y"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(farmID), kind, priority, title, readStr, formatTime(createdAt, "01-02 15:04"))
	}
	w.Flush()
	return rows.Err()
}

func showStats(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	return writeStats(os.Stdout, db)
}

func writeStats(out io.Writer, db *sql.DB) error {
	fmt.Fprintln(out, "Database Statistics")
	fmt.Fprintln(out, "===================")

	counts := []struct {
		label string
		query string
	}{
		{"Farms", "SELECT COUNT(*) FROM farms"},
		{"Active crops", "SELECT COUNT(*) FROM crops WHERE status = 'active'"},
		{"Devices", "SELECT COUNT(*) FROM devices"},
		{"Offline devices", "SELECT COUNT(*) FROM devices WHERE status = 'offline'"},
		{"Sensor readings", "SELECT COUNT(*) FROM sensor_readings"},
		{"Crop health snapshots", "SELECT COUNT(*) FROM crop_health"},
		{"Open schedules", "SELECT COUNT(*) FROM irrigation_schedules WHERE status IN ('pending', 'scheduled', 'in_progress')"},
		{"Completed schedules", "SELECT COUNT(*) FROM irrigation_schedules WHERE status = 'completed'"},
		{"Unread notifications", "SELECT COUNT(*) FROM notifications WHERE is_read = 0"},
	}

	for _, c := range counts {
		var n int
		if err := db.QueryRow(c.query).Scan(&n); err != nil {
			return fmt.Errorf("failed to count %s: %w", strings.ToLower(c.label), err)
		}
		fmt.Fprintf(out, "%s: %d\n", c.label, n)
	}
	return nil
}

func executeQuery(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	query := args[0]

	// Only allow SELECT queries
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT") {
		return fmt.Errorf("only SELECT queries are allowed")
	}

	rows, err := db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(cols, "\t"))
	fmt.Fprintln(w, strings.Repeat("-\t", len(cols)))

	values := make([]any, len(cols))
	valuePtrs := make([]any, len(cols))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(valuePtrs...); err != nil {
			return err
		}

		var row []string
		for _, v := range values {
			switch val := v.(type) {
			case nil:
				row = append(row, "NULL")
			case []byte:
				row = append(row, string(val))
			default:
				row = append(row, fmt.Sprintf("%v", val))
			}
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
	return rows.Err()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatFloat(v sql.NullFloat64, format string) string {
	if !v.Valid {
		return "-"
	}
	return fmt.Sprintf(format, v.Float64)
}

func formatTime(t sql.NullTime, layout string) string {
	if !t.Valid {
		return "-"
	}
	return t.Time.Local().Format(layout)
}
