package export

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"turfbook/internal/models"
	"turfbook/internal/service"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const maxSheetName = 31

var columns = []string{
	"Reference", "Date", "Start", "End", "Customer", "Phone", "Email", "Status", "Amount", "Currency",
}

// BookingLister часть сервиса бронирований, из которой читает отчет.
type BookingLister interface {
	ListBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error)
}

// Exporter строит Excel отчеты по бронированиям.
type Exporter struct {
	bookings BookingLister
	dir      string
	logger   *zerolog.Logger
}

func NewExporter(bookings BookingLister, dir string, logger *zerolog.Logger) *Exporter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Exporter{bookings: bookings, dir: dir, logger: logger}
}

// FileName имя файла отчета за период.
func FileName(from, to time.Time) string {
	return fmt.Sprintf("bookings_%s_to_%s.xlsx", from.Format(time.DateOnly), to.Format(time.DateOnly))
}

// Write пишет отчет за [from, to] в w.
func (e *Exporter) Write(ctx context.Context, w io.Writer, from, to time.Time, venueID int64) error {
	f, err := e.build(ctx, from, to, venueID)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing report: %w", err)
	}
	return nil
}

// Save сохраняет отчет в папку экспорта и возвращает путь.
func (e *Exporter) Save(ctx context.Context, from, to time.Time, venueID int64) (string, error) {
	// Создаем папку для экспорта, если не существует
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := e.build(ctx, from, to, venueID)
	if err != nil {
		return "", err
	}
	defer f.Close()

	filePath := filepath.Join(e.dir, FileName(from, to))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("Excel report created")
	return filePath, nil
}

func (e *Exporter) build(ctx context.Context, from, to time.Time, venueID int64) (*excelize.File, error) {
	bookings, err := e.bookings.ListBookings(ctx, models.BookingFilter{
		VenueID: venueID,
		From:    &from,
		To:      &to,
		Limit:   -1,
	})
	if err != nil {
		return nil, fmt.Errorf("error getting bookings: %w", err)
	}
	return BookingsReport(bookings, from, to)
}

type venueGroup struct {
	id       int64
	name     string
	bookings []*models.Booking
}

// BookingsReport строит по листу на площадку с итоговой строкой под таблицей.
func BookingsReport(bookings []*models.Booking, from, to time.Time) (*excelize.File, error) {
	f := excelize.NewFile()
	styles, err := newReportStyles(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	groups := groupByVenue(bookings)
	if len(groups) == 0 {
		groups = []*venueGroup{{name: "Bookings"}}
	}

	used := make(map[string]bool)
	for i, g := range groups {
		name := sheetName(g, used)
		if i == 0 {
			// переименовываем стандартный лист вместо удаления
			if err := f.SetSheetName("Sheet1", name); err != nil {
				f.Close()
				return nil, fmt.Errorf("error creating sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("error creating sheet: %w", err)
		}
		if err := writeVenueSheet(f, name, g, from, to, styles); err != nil {
			f.Close()
			return nil, err
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

func groupByVenue(bookings []*models.Booking) []*venueGroup {
	byID := make(map[int64]*venueGroup)
	var groups []*venueGroup
	for _, b := range bookings {
		g, ok := byID[b.VenueID]
		if !ok {
			name := b.VenueName
			if name == "" {
				name = fmt.Sprintf("Venue %d", b.VenueID)
			}
			g = &venueGroup{id: b.VenueID, name: name}
			byID[b.VenueID] = g
			groups = append(groups, g)
		}
		g.bookings = append(g.bookings, b)
	}
	slices.SortFunc(groups, func(a, b *venueGroup) int {
		return cmp.Or(cmp.Compare(a.name, b.name), cmp.Compare(a.id, b.id))
	})
	return groups
}

// sheetName делает из названия площадки допустимое уникальное имя листа.
func sheetName(g *venueGroup, used map[string]bool) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '-'
		}
		return r
	}, strings.TrimSpace(g.name))
	name = strings.Trim(name, "'")
	if name == "" {
		name = fmt.Sprintf("Venue %d", g.id)
	}
	name = truncate(name, maxSheetName)

	if used[strings.ToLower(name)] {
		suffix := fmt.Sprintf(" #%d", g.id)
		name = truncate(name, maxSheetName-len(suffix)) + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

type reportStyles struct {
	title, header, money, total, totalMoney int
}

func newReportStyles(f *excelize.File) (reportStyles, error) {
	var s reportStyles
	var err error
	moneyFmt := "#,##0.00"

	if s.title, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14},
	}); err != nil {
		return s, err
	}
	if s.header, err = f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	}); err != nil {
		return s, err
	}
	if s.money, err = f.NewStyle(&excelize.Style{CustomNumFmt: &moneyFmt}); err != nil {
		return s, err
	}
	if s.total, err = f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	}); err != nil {
		return s, err
	}
	s.totalMoney, err = f.NewStyle(&excelize.Style{
		Fill:         excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font:         &excelize.Font{Bold: true},
		CustomNumFmt: &moneyFmt,
	})
	return s, err
}

func writeVenueSheet(f *excelize.File, sheet string, g *venueGroup, from, to time.Time, st reportStyles) error {
	lastCol, _ := excelize.ColumnNumberToName(len(columns))

	_ = f.SetCellValue(sheet, "A1", fmt.Sprintf("%s: %s - %s", g.name, from.Format("02.01.2006"), to.Format("02.01.2006")))
	_ = f.MergeCell(sheet, "A1", lastCol+"1")
	_ = f.SetCellStyle(sheet, "A1", "A1", st.title)

	if err := f.SetSheetRow(sheet, "A3", &columns); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	_ = f.SetCellStyle(sheet, "A3", lastCol+"3", st.header)

	row := 4
	for _, b := range g.bookings {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := []interface{}{
			b.Reference,
			b.Date.Format(time.DateOnly),
			b.StartTime.String(),
			b.EndTime().String(),
			b.CustomerName,
			b.CustomerPhone,
			b.CustomerEmail,
			b.Status,
			b.Amount.InexactFloat64(),
			strings.ToUpper(b.Currency),
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("error writing booking %s: %w", b.Reference, err)
		}
		amountCell, _ := excelize.CoordinatesToCellName(9, row)
		_ = f.SetCellStyle(sheet, amountCell, amountCell, st.money)
		row++
	}

	// Итоговая строка: выручка считается только по подтвержденным и завершенным
	row++
	label, _ := excelize.CoordinatesToCellName(1, row)
	countCell, _ := excelize.CoordinatesToCellName(2, row)
	revenueCell, _ := excelize.CoordinatesToCellName(9, row)
	_ = f.SetCellValue(sheet, label, "Total revenue")
	_ = f.SetCellValue(sheet, countCell, fmt.Sprintf("%d bookings", len(g.bookings)))
	_ = f.SetCellValue(sheet, revenueCell, service.Revenue(g.bookings).InexactFloat64())
	endCell, _ := excelize.CoordinatesToCellName(len(columns), row)
	_ = f.SetCellStyle(sheet, label, endCell, st.total)
	_ = f.SetCellStyle(sheet, revenueCell, revenueCell, st.totalMoney)

	_ = f.SetColWidth(sheet, "A", "A", 40)
	_ = f.SetColWidth(sheet, "B", "D", 12)
	_ = f.SetColWidth(sheet, "E", "G", 24)
	_ = f.SetColWidth(sheet, "H", lastCol, 14)
	return nil
}
