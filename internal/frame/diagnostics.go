// Package frame はアップロードされたフレームのメタデータを解析する純粋関数群
//
// カメラ内部/外部パラメータの行列化、深度マップの統計、外部パラメータの
// 列優先への並べ替えを提供する。状態は持たない。
package frame

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// 行列の表現形式
const (
	FormMatrix = "matrix" // フラットな配列から行列化した
	FormFields = "fields" // オブジェクト形式
	FormRaw    = "raw"    // 解釈できなかった
)

// Intrinsics はカメラ内部パラメータ
type Intrinsics struct {
	Form   string
	Matrix [3][3]float64
	Fields map[string]any // fx, fy, cx, cy
	Raw    any
}

// Extrinsics はカメラ外部パラメータ（4x4変換行列）
type Extrinsics struct {
	Form        string
	Matrix      [4][4]float64
	Rotation    any
	Translation any
	Raw         any
}

// DepthStats は有限値のみで計算した深度の統計
type DepthStats struct {
	Min    float64
	Max    float64
	Mean   float64
	Finite int
}

// Depth は深度マップの情報
type Depth struct {
	Size                int
	Described           bool // メタデータに depth_info があった
	Type                string
	PixelFormat         string
	Units               string
	Width               int
	Height              int
	BytesPerRow         int
	ConfidenceAvailable *bool
	Stats               *DepthStats
	Warning             string
}

// Report は1フレーム分の解析結果
type Report struct {
	Intrinsics  *Intrinsics
	Extrinsics  *Extrinsics
	ImageSize   int
	ImageWidth  int
	ImageHeight int
	Depth       *Depth
}

// Analyze はメタデータと画像/深度データを解析する
func Analyze(metadata map[string]any, image, depth []byte) Report {
	report := Report{ImageSize: len(image)}

	if v, ok := metadata["intrinsics"]; ok {
		report.Intrinsics = parseIntrinsics(v)
	}
	if v, ok := metadata["extrinsics"]; ok {
		report.Extrinsics = parseExtrinsics(v)
	}

	w, wok := toInt(metadata["image_width"])
	h, hok := toInt(metadata["image_height"])
	if wok && hok {
		report.ImageWidth = w
		report.ImageHeight = h
	}

	if len(depth) > 0 {
		info, _ := metadata["depth_info"].(map[string]any)
		if info == nil {
			info, _ = metadata["depth"].(map[string]any)
		}
		report.Depth = analyzeDepth(info, depth)
	}

	return report
}

func parseIntrinsics(v any) *Intrinsics {
	switch value := v.(type) {
	case []any:
		values, ok := toFloats(value)
		if !ok || len(values) != 9 {
			return &Intrinsics{Form: FormRaw, Raw: v}
		}
		in := &Intrinsics{Form: FormMatrix}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				in.Matrix[i][j] = values[i*3+j]
			}
		}
		return in
	case map[string]any:
		fields := make(map[string]any, 4)
		for _, key := range []string{"fx", "fy", "cx", "cy"} {
			if f, ok := value[key]; ok {
				fields[key] = f
			}
		}
		return &Intrinsics{Form: FormFields, Fields: fields}
	default:
		return &Intrinsics{Form: FormRaw, Raw: v}
	}
}

func parseExtrinsics(v any) *Extrinsics {
	switch value := v.(type) {
	case []any:
		values, ok := toFloats(value)
		if !ok || len(values) != 16 {
			return &Extrinsics{Form: FormRaw, Raw: v}
		}
		ex := &Extrinsics{Form: FormMatrix}
		for i := 0; i < 4; i++ {
			for j := 0; j < 4; j++ {
				ex.Matrix[i][j] = values[i*4+j]
			}
		}
		return ex
	case map[string]any:
		rotation, rok := value["rotation"]
		translation, tok := value["translation"]
		if rok && tok {
			return &Extrinsics{Form: FormFields, Rotation: rotation, Translation: translation}
		}
		return &Extrinsics{Form: FormRaw, Raw: v}
	default:
		return &Extrinsics{Form: FormRaw, Raw: v}
	}
}

// RotationMatrix は外部パラメータ行列の回転成分（左上3x3）を返す
func (e *Extrinsics) RotationMatrix() [3][3]float64 {
	var r [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = e.Matrix[i][j]
		}
	}
	return r
}

// TranslationVector は外部パラメータ行列の並進成分（3列目の上3要素）を返す
func (e *Extrinsics) TranslationVector() [3]float64 {
	return [3]float64{e.Matrix[0][3], e.Matrix[1][3], e.Matrix[2][3]}
}

func analyzeDepth(info map[string]any, data []byte) *Depth {
	d := &Depth{Size: len(data)}
	if info == nil {
		return d
	}

	d.Described = true
	d.Type = stringOr(info["type"], "sceneDepth")
	d.PixelFormat = stringOr(info["pixel_format"], "unknown")
	d.Units = stringOr(info["units"], "meters")
	d.Width, _ = toInt(info["width"])
	d.Height, _ = toInt(info["height"])
	d.BytesPerRow, _ = toInt(info["bytes_per_row"])
	if c, ok := info["confidence_available"].(bool); ok {
		d.ConfidenceAvailable = &c
	}

	if d.Width <= 0 || d.Height <= 0 {
		_, hasWidth := info["width"]
		_, hasHeight := info["height"]
		if hasWidth || hasHeight {
			d.Warning = fmt.Sprintf("無効な深度解像度です (%vx%v)", info["width"], info["height"])
		}
		d.Width, d.Height = 0, 0
		return d
	}

	bytesPerElement := 4
	if bpe, ok := toInt(info["bytes_per_element"]); ok {
		bytesPerElement = bpe
	}
	if bytesPerElement != 4 {
		d.Warning = fmt.Sprintf("未対応の要素サイズです (%d bytes)", bytesPerElement)
		return d
	}
	if d.Width > math.MaxInt/bytesPerElement/d.Height {
		d.Warning = fmt.Sprintf("深度解像度が大きすぎます (%dx%d)", d.Width, d.Height)
		return d
	}

	elements := d.Width * d.Height
	expectedSize := elements * bytesPerElement
	if len(data) < expectedSize {
		d.Warning = fmt.Sprintf("深度データのサイズ (%d) が期待値 (%d) より小さい", len(data), expectedSize)
		return d
	}

	d.Stats = DepthStatistics(data, elements)
	return d
}

// DepthStatistics はリトルエンディアンfloat32の先頭 count 要素から有限値の統計を計算する
//
// 有限値が1つもない場合は nil を返す。
func DepthStatistics(data []byte, count int) *DepthStats {
	if count > len(data)/4 {
		count = len(data) / 4
	}

	stats := &DepthStats{Min: math.Inf(1), Max: math.Inf(-1)}
	sum := 0.0
	for i := 0; i < count; i++ {
		v := float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		stats.Finite++
		sum += v
		stats.Min = math.Min(stats.Min, v)
		stats.Max = math.Max(stats.Max, v)
	}

	if stats.Finite == 0 {
		return nil
	}
	stats.Mean = sum / float64(stats.Finite)
	return stats
}

// NormalizeExtrinsics は行優先の4x4フラット配列を列優先に並べ替える
//
// 16要素の数値配列でなければ入力をそのまま返し、false を返す。
func NormalizeExtrinsics(v any) (any, bool) {
	list, ok := v.([]any)
	if !ok {
		return v, false
	}
	values, ok := toFloats(list)
	if !ok || len(values) != 16 {
		return v, false
	}

	out := make([]any, 16)
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			out[col*4+row] = values[row*4+col]
		}
	}
	return out, true
}

// Lines はログ出力用の行を返す
func (r Report) Lines() []string {
	var lines []string

	if in := r.Intrinsics; in != nil {
		lines = append(lines, "カメラ内部パラメータ:")
		switch in.Form {
		case FormMatrix:
			lines = append(lines,
				fmt.Sprintf("  fx: %.4f", in.Matrix[0][0]),
				fmt.Sprintf("  fy: %.4f", in.Matrix[1][1]),
				fmt.Sprintf("  cx: %.4f", in.Matrix[0][2]),
				fmt.Sprintf("  cy: %.4f", in.Matrix[1][2]),
			)
			lines = append(lines, "  行列:")
			for _, row := range in.Matrix {
				lines = append(lines, "    "+formatRow(row[:]))
			}
		case FormFields:
			for _, key := range []string{"fx", "fy", "cx", "cy"} {
				value, ok := in.Fields[key]
				if !ok {
					value = "N/A"
				}
				lines = append(lines, fmt.Sprintf("  %s: %v", key, value))
			}
		default:
			lines = append(lines, fmt.Sprintf("  Raw: %v", in.Raw))
		}
	}

	if ex := r.Extrinsics; ex != nil {
		lines = append(lines, "カメラ外部パラメータ (4x4 変換行列):")
		switch ex.Form {
		case FormMatrix:
			lines = append(lines, "  回転 (3x3):")
			for _, row := range ex.RotationMatrix() {
				lines = append(lines, "    "+formatRow(row[:]))
			}
			t := ex.TranslationVector()
			lines = append(lines, "  並進: "+formatRow(t[:]))
		case FormFields:
			lines = append(lines,
				fmt.Sprintf("  Rotation: %v", ex.Rotation),
				fmt.Sprintf("  Translation: %v", ex.Translation),
			)
		default:
			lines = append(lines, fmt.Sprintf("  Raw: %v", ex.Raw))
		}
	}

	lines = append(lines, fmt.Sprintf("画像サイズ: %d bytes", r.ImageSize))
	if r.ImageWidth > 0 && r.ImageHeight > 0 {
		lines = append(lines, fmt.Sprintf("画像解像度: %dx%d", r.ImageWidth, r.ImageHeight))
	}

	d := r.Depth
	if d == nil {
		return append(lines, "深度マップ: なし")
	}

	lines = append(lines, "深度マップ:", fmt.Sprintf("  サイズ: %d bytes", d.Size))
	if !d.Described {
		return append(lines, "  深度メタデータがないため詳細解析をスキップ")
	}
	lines = append(lines, "  種類: "+d.Type)
	if d.Width > 0 && d.Height > 0 {
		lines = append(lines, fmt.Sprintf("  解像度: %dx%d (bytes/row: %d)", d.Width, d.Height, d.BytesPerRow))
	}
	lines = append(lines, fmt.Sprintf("  フォーマット: %s | 単位: %s", d.PixelFormat, d.Units))
	if d.ConfidenceAvailable != nil {
		lines = append(lines, fmt.Sprintf("  信頼度マップ: %t", *d.ConfidenceAvailable))
	}
	if d.Stats != nil {
		lines = append(lines,
			fmt.Sprintf("  深度範囲: %.3fm - %.3fm", d.Stats.Min, d.Stats.Max),
			fmt.Sprintf("  深度平均: %.3fm", d.Stats.Mean),
		)
	}
	if d.Warning != "" {
		lines = append(lines, "  警告: "+d.Warning)
	}

	return lines
}

func formatRow(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%10.4f", v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func toFloats(values []any) ([]float64, bool) {
	out := make([]float64, len(values))
	for i, v := range values {
		f, ok := toFloat(v)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// toInt は int の範囲外や NaN を変換しない
func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || f >= float64(math.MaxInt) || f <= float64(math.MinInt) {
		return 0, false
	}
	return int(f), true
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}
