package broker

// Format tokens accepted by Convert and Join.
const (
	FormatPDF = "pdf"
	FormatODT = "odt"
	FormatODS = "ods"
	FormatDOC = "doc"
	FormatXLS = "xls"
	FormatCSV = "csv"
)

// DefaultJoinFilter is the import filter Join uses for unknown formats.
const DefaultJoinFilter = "writer8"

// filters maps format tokens to engine filter names. Read-only.
var filters = map[string]string{
	FormatPDF: "writer_pdf_Export",
	FormatODT: "writer8",
	FormatODS: "calc8",
	FormatDOC: "MS Word 97",
	FormatXLS: "MS Excel 97",
	FormatCSV: "Text - txt - csv (StarCalc)",
}

// Filter returns the engine filter for format, or "" when format is
// unknown, letting the engine pick its default.
func Filter(format string) string {
	return filters[format]
}

// Formats returns the supported format tokens.
func Formats() []string {
	return []string{FormatPDF, FormatODT, FormatODS, FormatDOC, FormatXLS, FormatCSV}
}
