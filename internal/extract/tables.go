package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Role keywords for detecting role columns in syndicate tables.
var roleKeywords = []string{
	"joint bookrunner", "active bookrunner", "passive bookrunner", "bookrunner",
	"co-manager", "co manager", "lead manager", "manager",
	"senior underwriter", "lead underwriter", "underwriter",
	"mandated lead arranger", "joint lead arranger", "lead arranger", "arranger",
	"administrative agent", "admin agent", "syndication agent", "documentation agent",
	"collateral agent", "paying agent",
	"financial advisor", "financial adviser", "advisor", "adviser",
	"fairness opinion",
}

var bankNameRE = regexp.MustCompile(`(?i)` + strings.Join([]string{
	`\b(?:J\.?P\.?\s*Morgan|JPMorgan)\b`,
	`\b(?:Goldman\s*Sachs|GS)\b`,
	`\b(?:Morgan\s*Stanley)\b`,
	`\b(?:Bank\s*of\s*America|BofA|BAML)\b`,
	`\b(?:Citi(?:group|bank)?)\b`,
	`\b(?:Wells\s*Fargo)\b`,
	`\b(?:Barclays)\b`,
	`\b(?:Deutsche\s*Bank)\b`,
	`\b(?:Credit\s*Suisse)\b`,
	`\b(?:UBS)\b`,
	`\b(?:HSBC)\b`,
	`\b(?:BNP\s*Paribas)\b`,
	`\b(?:Societe\s*Generale)\b`,
	`\b(?:RBC|Royal\s*Bank\s*of\s*Canada)\b`,
	`\b(?:TD\s*Securities)\b`,
	`\b(?:Mizuho)\b`,
	`\b(?:MUFG|Mitsubishi\s*UFJ)\b`,
	`\b(?:SMBC|Sumitomo\s*Mitsui)\b`,
}, "|"))

var (
	bankSuffixRE  = regexp.MustCompile(`(?i)\b(?:LLC|Inc\.?|N\.?A\.?|Bank|Securities|Capital)\s*$`)
	numericCellRE = regexp.MustCompile(`^[\$\d,.\s]+$`)
	headerWordsRE = regexp.MustCompile(`(?i)\b(?:name|lender|underwriter|role|institution|amount|commitment)\b`)
)

const (
	roleColumnDensity = 0.3
	bankColumnDensity = 0.2
)

// TableCell is one cell of the expanded table grid. Cells spanning multiple
// rows or columns are duplicated into every grid slot they cover.
type TableCell struct {
	Text     string
	Row      int
	Col      int
	RowSpan  int
	ColSpan  int
	IsHeader bool
}

// Table is the canonical grid form of one HTML table with detected header
// rows, role column and bank columns.
type Table struct {
	Cells       [][]TableCell
	HeaderRows  int
	RoleColumn  int // -1 when no role column detected
	BankColumns []int
	NumRows     int
	NumCols     int
}

// BankRole is one bank/role pair lifted from a table.
type BankRole struct {
	BankName string
	Role     string
	Row      int
	Col      int
	Evidence string
}

// ParseTables parses every <table> in the HTML into grid form. Tables with
// no rows are skipped.
func ParseTables(rawHTML string) ([]Table, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}

	var tables []Table
	doc.Find("table").Each(func(_ int, sel *goquery.Selection) {
		table, ok := parseTableSelection(sel)
		if !ok {
			return
		}
		detectHeaders(&table)
		detectRoleColumn(&table)
		detectBankColumns(&table)
		tables = append(tables, table)
	})
	return tables, nil
}

func parseTableSelection(sel *goquery.Selection) (Table, bool) {
	type rawCell struct {
		text     string
		rowSpan  int
		colSpan  int
		isHeader bool
	}

	var rawRows [][]rawCell
	sel.Find("tr").Each(func(_ int, row *goquery.Selection) {
		var cells []rawCell
		row.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, rawCell{
				text:     strings.Join(strings.Fields(cell.Text()), " "),
				rowSpan:  intAttr(cell, "rowspan", 1),
				colSpan:  intAttr(cell, "colspan", 1),
				isHeader: goquery.NodeName(cell) == "th",
			})
		})
		rawRows = append(rawRows, cells)
	})

	if len(rawRows) == 0 {
		return Table{}, false
	}

	maxCols := 0
	for _, row := range rawRows {
		width := 0
		for _, c := range row {
			width += c.colSpan
		}
		if width > maxCols {
			maxCols = width
		}
	}
	if maxCols == 0 {
		return Table{}, false
	}

	numRows := len(rawRows)
	grid := make([][]*TableCell, numRows)
	for i := range grid {
		grid[i] = make([]*TableCell, maxCols)
	}

	for rowIdx, row := range rawRows {
		colIdx := 0
		for _, raw := range row {
			for colIdx < maxCols && grid[rowIdx][colIdx] != nil {
				colIdx++
			}
			if colIdx >= maxCols {
				break
			}

			cell := &TableCell{
				Text:     raw.text,
				Row:      rowIdx,
				Col:      colIdx,
				RowSpan:  raw.rowSpan,
				ColSpan:  raw.colSpan,
				IsHeader: raw.isHeader,
			}
			for r := rowIdx; r < rowIdx+raw.rowSpan && r < numRows; r++ {
				for c := colIdx; c < colIdx+raw.colSpan && c < maxCols; c++ {
					grid[r][c] = cell
				}
			}
			colIdx += raw.colSpan
		}
	}

	cells := make([][]TableCell, numRows)
	for r := range grid {
		cells[r] = make([]TableCell, maxCols)
		for c := range grid[r] {
			if grid[r][c] != nil {
				cells[r][c] = *grid[r][c]
			} else {
				cells[r][c] = TableCell{Row: r, Col: c, RowSpan: 1, ColSpan: 1}
			}
		}
	}

	return Table{
		Cells:      cells,
		RoleColumn: -1,
		NumRows:    numRows,
		NumCols:    maxCols,
	}, true
}

func intAttr(sel *goquery.Selection, name string, fallback int) int {
	raw, ok := sel.Attr(name)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

// detectHeaders counts leading header rows: all-<th> rows, or a short first
// row carrying header keywords. Headers live in the first three rows.
func detectHeaders(table *Table) {
	headerCount := 0

	for rowIdx, row := range table.Cells {
		if rowIdx > 2 {
			break
		}

		allHeaders := true
		anyText := false
		for _, cell := range row {
			if strings.TrimSpace(cell.Text) == "" {
				continue
			}
			anyText = true
			if !cell.IsHeader {
				allHeaders = false
			}
		}
		if anyText && allHeaders {
			headerCount = rowIdx + 1
			continue
		}

		if rowIdx == 0 {
			allShort := true
			var texts []string
			for _, cell := range row {
				t := strings.TrimSpace(cell.Text)
				if t == "" {
					continue
				}
				texts = append(texts, strings.ToLower(t))
				if len(t) >= 30 {
					allShort = false
				}
			}
			if allShort && headerWordsRE.MatchString(strings.Join(texts, " ")) {
				headerCount = 1
			}
		}
	}

	table.HeaderRows = headerCount
}

func detectRoleColumn(table *Table) {
	dataRows := table.NumRows - table.HeaderRows
	if table.NumCols == 0 || dataRows <= 0 {
		return
	}

	counts := make([]int, table.NumCols)
	for _, row := range table.Cells[table.HeaderRows:] {
		for colIdx, cell := range row {
			lower := strings.ToLower(cell.Text)
			for _, kw := range roleKeywords {
				if strings.Contains(lower, kw) {
					counts[colIdx]++
					break
				}
			}
		}
	}

	for colIdx, count := range counts {
		if float64(count)/float64(dataRows) > roleColumnDensity {
			table.RoleColumn = colIdx
			return
		}
	}
}

func detectBankColumns(table *Table) {
	dataRows := table.NumRows - table.HeaderRows
	if table.NumCols == 0 || dataRows <= 0 {
		return
	}

	counts := make([]int, table.NumCols)
	for _, row := range table.Cells[table.HeaderRows:] {
		for colIdx, cell := range row {
			if bankNameRE.MatchString(cell.Text) {
				counts[colIdx]++
			}
		}
	}

	for colIdx, count := range counts {
		if float64(count)/float64(dataRows) > bankColumnDensity {
			table.BankColumns = append(table.BankColumns, colIdx)
		}
	}
}

// ExtractBankRoles lifts bank/role pairs out of a parsed table. The role
// comes from the role column when one exists, from role keywords elsewhere
// in the row otherwise, and finally from the table header.
func ExtractBankRoles(table Table) []BankRole {
	var out []BankRole

	headerRole := headerInferredRole(table)

	for rowIdx := table.HeaderRows; rowIdx < table.NumRows; rowIdx++ {
		row := table.Cells[rowIdx]

		bankName := ""
		bankCol := 0
		for colIdx, cell := range row {
			text := strings.TrimSpace(cell.Text)
			if text == "" {
				continue
			}
			if bankNameRE.MatchString(text) {
				bankName = text
				bankCol = colIdx
				break
			}
			if bankSuffixRE.MatchString(text) && !numericCellRE.MatchString(text) {
				bankName = text
				bankCol = colIdx
				break
			}
		}
		if bankName == "" {
			continue
		}

		role := ""
		if table.RoleColumn >= 0 && table.RoleColumn < len(row) {
			role = strings.TrimSpace(row[table.RoleColumn].Text)
		} else {
			for colIdx, cell := range row {
				if colIdx == bankCol {
					continue
				}
				lower := strings.ToLower(cell.Text)
				for _, kw := range roleKeywords {
					if strings.Contains(lower, kw) {
						role = strings.TrimSpace(cell.Text)
						break
					}
				}
				if role != "" {
					break
				}
			}
		}
		if role == "" {
			role = headerRole
		}
		if role == "" {
			continue
		}

		var evidence []string
		for _, cell := range row {
			if strings.TrimSpace(cell.Text) != "" {
				evidence = append(evidence, cell.Text)
			}
		}

		out = append(out, BankRole{
			BankName: bankName,
			Role:     role,
			Row:      rowIdx,
			Col:      bankCol,
			Evidence: strings.Join(evidence, " | "),
		})
	}

	return out
}

func headerInferredRole(table Table) string {
	for rowIdx := 0; rowIdx < table.HeaderRows; rowIdx++ {
		for _, cell := range table.Cells[rowIdx] {
			lower := strings.ToLower(cell.Text)
			switch {
			case strings.Contains(lower, "underwriter"):
				return "underwriter"
			case strings.Contains(lower, "lender"):
				return "lender"
			case strings.Contains(lower, "arranger"):
				return "arranger"
			case strings.Contains(lower, "bank"), strings.Contains(lower, "institution"):
				return "participant"
			}
		}
	}
	return ""
}

// ExtractFinancingParticipants parses all tables in the HTML and returns
// every bank/role pair found.
func ExtractFinancingParticipants(rawHTML string) ([]BankRole, error) {
	tables, err := ParseTables(rawHTML)
	if err != nil {
		return nil, err
	}
	var out []BankRole
	for _, table := range tables {
		out = append(out, ExtractBankRoles(table)...)
	}
	return out, nil
}
