package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CSV欄位名稱（不分大小寫），缺少必要欄位時整份匯入失敗
const (
	csvColName         = "nome"
	csvColStarter      = "titolare"
	csvColAverage      = "mediaprec"
	csvColFantaAverage = "fantamediaprec"
)

// LoadExtraCSV 解析補充情報CSV，返回以球員名稱為鍵的補充資料。
// 首列為表頭，欄位順序不拘；數值欄位留空時視為零。
func LoadExtraCSV(r io.Reader) (map[string]Extra, error) {
	const op = "catalog.LoadExtraCSV"

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to read header, err=%w", op, err)
	}
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	nameIdx, ok := idx[csvColName]
	if !ok {
		return nil, fmt.Errorf("[%s] Fail to find column %q in header", op, csvColName)
	}

	result := make(map[string]Extra)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to read line %d, err=%w", op, line, err)
		}
		name := strings.TrimSpace(record[nameIdx])
		if name == "" {
			continue
		}
		extra := Extra{}
		if i, ok := idx[csvColStarter]; ok && i < len(record) {
			extra.Starter = parseCSVBool(record[i])
		}
		if i, ok := idx[csvColAverage]; ok && i < len(record) {
			extra.LastSeasonAverage, err = parseCSVFloat(record[i])
			if err != nil {
				return nil, fmt.Errorf("[%s] Fail to parse %q at line %d, err=%w", op, csvColAverage, line, err)
			}
		}
		if i, ok := idx[csvColFantaAverage]; ok && i < len(record) {
			extra.LastSeasonFantaAverage, err = parseCSVFloat(record[i])
			if err != nil {
				return nil, fmt.Errorf("[%s] Fail to parse %q at line %d, err=%w", op, csvColFantaAverage, line, err)
			}
		}
		result[name] = extra
	}
	return result, nil
}

func parseCSVBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "si", "sì", "yes", "y":
		return true
	default:
		return false
	}
}

func parseCSVFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	// 義大利語系資料常以逗號為小數點
	s = strings.ReplaceAll(s, ",", ".")
	return strconv.ParseFloat(s, 64)
}
