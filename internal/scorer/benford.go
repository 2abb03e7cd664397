package scorer

import "math"

// 卡方检验 8 自由度 95% 临界值
const chiSquareCritical = 15.507

// 各子检测的样本量门槛：不足门槛按证据不足处理，不判定可疑
const (
	minBenfordSample  = 30
	minUniformitySample = 10
	maxTxPerAddress   = 5.0
	minVariationCoeff = 0.10
)

// WashTradeDetector 刷量检测器
// 三种独立手段任一命中即判定可疑
type WashTradeDetector struct{}

// IsSuspicious 判断成交样本是否存在刷量特征
func (d WashTradeDetector) IsSuspicious(sample []int64, uniqueAddresses int64) bool {
	if d.benfordViolation(sample) {
		return true
	}
	if d.uniformitySuspicious(sample) {
		return true
	}
	return d.addressRatioSuspicious(sample, uniqueAddresses)
}

// benfordViolation 首位数字频率对 Benford 分布做卡方检验
// P(d) = log10(1 + 1/d)，d = 1..9
func (d WashTradeDetector) benfordViolation(sample []int64) bool {
	if len(sample) < minBenfordSample {
		return false
	}

	var counts [10]int
	total := 0
	for _, v := range sample {
		if v <= 0 {
			continue
		}
		counts[leadingDigit(v)]++
		total++
	}
	if total < minBenfordSample {
		return false
	}

	chiSquare := 0.0
	for digit := 1; digit <= 9; digit++ {
		expected := math.Log10(1+1/float64(digit)) * float64(total)
		diff := float64(counts[digit]) - expected
		chiSquare += diff * diff / expected
	}

	return chiSquare >= chiSquareCritical
}

// uniformitySuspicious 变异系数过低说明成交额过于均匀
func (d WashTradeDetector) uniformitySuspicious(sample []int64) bool {
	if len(sample) <= minUniformitySample {
		return false
	}

	n := float64(len(sample))
	var sum float64
	for _, v := range sample {
		sum += float64(v)
	}
	mean := sum / n
	if mean <= 0 {
		return false
	}

	var sqDiff float64
	for _, v := range sample {
		d := float64(v) - mean
		sqDiff += d * d
	}
	stdev := math.Sqrt(sqDiff / n)

	return stdev/mean < minVariationCoeff
}

// addressRatioSuspicious 单地址平均成交笔数过高说明对手方过少
func (d WashTradeDetector) addressRatioSuspicious(sample []int64, uniqueAddresses int64) bool {
	if uniqueAddresses <= 0 {
		return false
	}
	return float64(len(sample))/float64(uniqueAddresses) > maxTxPerAddress
}

func leadingDigit(v int64) int {
	for v >= 10 {
		v /= 10
	}
	return int(v)
}
