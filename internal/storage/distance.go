package storage

import "math"

// CosineDistance 返回 1 - cos(a, b)，取值 [0, 2]
// 任一向量为零向量时返回 1；长度不同时只比较公共前缀，调用方负责维度校验
func CosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	d := 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	// 浮点误差可能让结果略微越界
	if d < 0 {
		return 0
	}
	if d > 2 {
		return 2
	}
	return d
}
