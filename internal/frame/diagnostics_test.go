package frame

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatsAsAny(values ...float64) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func encodeDepth(values ...float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func TestAnalyze_IntrinsicsMatrix(t *testing.T) {
	meta := map[string]any{
		"intrinsics": floatsAsAny(500, 0, 320, 0, 510, 240, 0, 0, 1),
	}

	report := Analyze(meta, []byte("jpeg"), nil)

	require.NotNil(t, report.Intrinsics)
	assert.Equal(t, FormMatrix, report.Intrinsics.Form)
	assert.Equal(t, 500.0, report.Intrinsics.Matrix[0][0])
	assert.Equal(t, 510.0, report.Intrinsics.Matrix[1][1])
	assert.Equal(t, 320.0, report.Intrinsics.Matrix[0][2])
	assert.Equal(t, 240.0, report.Intrinsics.Matrix[1][2])
	assert.Equal(t, 4, report.ImageSize)
	assert.Contains(t, report.Lines(), "  fx: 500.0000")
}

func TestAnalyze_IntrinsicsVariants(t *testing.T) {
	testCases := []struct {
		name string
		in   any
		form string
	}{
		{"オブジェクト形式", map[string]any{"fx": 1.0, "cy": 2.0}, FormFields},
		{"要素数が不正", floatsAsAny(1, 2, 3), FormRaw},
		{"数値以外を含む", []any{"a", 1.0}, FormRaw},
		{"文字列", "unknown", FormRaw},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			report := Analyze(map[string]any{"intrinsics": tc.in}, nil, nil)
			require.NotNil(t, report.Intrinsics)
			assert.Equal(t, tc.form, report.Intrinsics.Form)
		})
	}

	report := Analyze(map[string]any{"intrinsics": map[string]any{"fx": 1.0}}, nil, nil)
	assert.Contains(t, report.Lines(), "  fy: N/A")
}

func TestAnalyze_ExtrinsicsMatrix(t *testing.T) {
	meta := map[string]any{
		"extrinsics": floatsAsAny(
			1, 0, 0, 10,
			0, 1, 0, 20,
			0, 0, 1, 30,
			0, 0, 0, 1,
		),
		"image_width":  1920.0,
		"image_height": 1440.0,
	}

	report := Analyze(meta, nil, nil)

	require.NotNil(t, report.Extrinsics)
	assert.Equal(t, FormMatrix, report.Extrinsics.Form)
	assert.Equal(t, [3]float64{10, 20, 30}, report.Extrinsics.TranslationVector())
	assert.Equal(t, [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, report.Extrinsics.RotationMatrix())
	assert.Equal(t, 1920, report.ImageWidth)
	assert.Equal(t, 1440, report.ImageHeight)
	assert.Contains(t, report.Lines(), "画像解像度: 1920x1440")
}

func TestAnalyze_ExtrinsicsObject(t *testing.T) {
	report := Analyze(map[string]any{
		"extrinsics": map[string]any{"rotation": []any{1.0}, "translation": []any{2.0}},
	}, nil, nil)
	require.NotNil(t, report.Extrinsics)
	assert.Equal(t, FormFields, report.Extrinsics.Form)

	report = Analyze(map[string]any{"extrinsics": map[string]any{"rotation": 1.0}}, nil, nil)
	assert.Equal(t, FormRaw, report.Extrinsics.Form)
}

func TestAnalyze_DepthStatistics(t *testing.T) {
	depth := encodeDepth(1.5, float32(math.NaN()), 0.5, float32(math.Inf(1)))
	meta := map[string]any{
		"depth_info": map[string]any{
			"width":                2.0,
			"height":               2.0,
			"bytes_per_row":        8.0,
			"confidence_available": true,
		},
	}

	report := Analyze(meta, nil, depth)

	require.NotNil(t, report.Depth)
	d := report.Depth
	assert.True(t, d.Described)
	assert.Equal(t, "sceneDepth", d.Type)
	assert.Equal(t, "unknown", d.PixelFormat)
	assert.Equal(t, "meters", d.Units)
	require.NotNil(t, d.ConfidenceAvailable)
	assert.True(t, *d.ConfidenceAvailable)

	require.NotNil(t, d.Stats)
	assert.Equal(t, 2, d.Stats.Finite)
	assert.InDelta(t, 0.5, d.Stats.Min, 1e-6)
	assert.InDelta(t, 1.5, d.Stats.Max, 1e-6)
	assert.InDelta(t, 1.0, d.Stats.Mean, 1e-6)
	assert.Empty(t, d.Warning)
}

func TestAnalyze_DepthTooSmall(t *testing.T) {
	meta := map[string]any{
		"depth": map[string]any{"width": 4.0, "height": 4.0},
	}

	report := Analyze(meta, nil, encodeDepth(1, 2))

	require.NotNil(t, report.Depth)
	assert.Nil(t, report.Depth.Stats)
	assert.Contains(t, report.Depth.Warning, "(8)")
	assert.Contains(t, report.Depth.Warning, "(64)")
}

func TestAnalyze_DepthWithoutMetadata(t *testing.T) {
	report := Analyze(map[string]any{}, nil, encodeDepth(1))

	require.NotNil(t, report.Depth)
	assert.False(t, report.Depth.Described)
	assert.Contains(t, report.Lines(), "  深度メタデータがないため詳細解析をスキップ")

	report = Analyze(map[string]any{}, nil, nil)
	assert.Nil(t, report.Depth)
	assert.Contains(t, report.Lines(), "深度マップ: なし")
}

func TestDepthStatistics_AllNonFinite(t *testing.T) {
	data := encodeDepth(float32(math.NaN()), float32(math.Inf(-1)))
	assert.Nil(t, DepthStatistics(data, 2))

	// count がデータ長を超えても範囲内だけ読む
	stats := DepthStatistics(encodeDepth(3), 10)
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.Finite)
}

func TestNormalizeExtrinsics(t *testing.T) {
	rowMajor := floatsAsAny(
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	)

	out, ok := NormalizeExtrinsics(rowMajor)
	require.True(t, ok)
	assert.Equal(t, floatsAsAny(1, 5, 9, 13, 2, 6, 10, 14, 3, 7, 11, 15, 4, 8, 12, 16), out)

	short := floatsAsAny(1, 2, 3)
	out, ok = NormalizeExtrinsics(short)
	assert.False(t, ok)
	assert.Equal(t, short, out)

	out, ok = NormalizeExtrinsics(map[string]any{"rotation": 1.0})
	assert.False(t, ok)
	assert.Equal(t, map[string]any{"rotation": 1.0}, out)
}

func TestAnalyze_DepthOverflowingDimensions(t *testing.T) {
	testCases := []struct {
		name    string
		width   any
		height  any
		warning string
	}{
		{"積がintを溢れる", float64(1 << 31), float64(1 << 31), "大きすぎます"},
		{"intの範囲外", 1e300, 2.0, "無効な深度解像度"},
		{"負の解像度", -4.0, 4.0, "無効な深度解像度"},
		{"ゼロ", 0.0, 4.0, "無効な深度解像度"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			meta := map[string]any{
				"depth_info": map[string]any{"width": tc.width, "height": tc.height},
			}

			report := Analyze(meta, []byte("jpeg"), make([]byte, 16))

			if report.Depth == nil {
				t.Fatal("Expected depth report")
			}
			if report.Depth.Stats != nil {
				t.Errorf("Expected no stats, got %+v", report.Depth.Stats)
			}
			if !strings.Contains(report.Depth.Warning, tc.warning) {
				t.Errorf("Expected warning containing %q, got %q", tc.warning, report.Depth.Warning)
			}
			// 表示用の行も組み立てられる
			if len(report.Lines()) == 0 {
				t.Error("Expected report lines")
			}
		})
	}
}

func TestDepthStatistics_HugeCount(t *testing.T) {
	stats := DepthStatistics(encodeDepth(2, 4), 1<<62)
	if stats == nil {
		t.Fatal("Expected stats")
	}
	if stats.Finite != 2 {
		t.Errorf("Expected 2 finite values, got %d", stats.Finite)
	}
	if stats.Mean != 3 {
		t.Errorf("Expected mean 3, got %v", stats.Mean)
	}
}

func TestToInt_RejectsOutOfRange(t *testing.T) {
	testCases := []struct {
		in   any
		want int
		ok   bool
	}{
		{640.0, 640, true},
		{1e300, 0, false},
		{-1e300, 0, false},
		{math.NaN(), 0, false},
		{math.Inf(1), 0, false},
		{"640", 0, false},
	}

	for _, tc := range testCases {
		got, ok := toInt(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("toInt(%v): expected (%d, %t), got (%d, %t)", tc.in, tc.want, tc.ok, got, ok)
		}
	}
}
