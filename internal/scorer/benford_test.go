package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// benfordSample 构造近似符合 Benford 分布的样本
func benfordSample() []int64 {
	// 首位数字计数按 P(d)=log10(1+1/d) 取整，n=100
	counts := []int{30, 18, 12, 10, 8, 7, 6, 5, 4}
	var sample []int64
	for digit, count := range counts {
		for i := 0; i < count; i++ {
			// 同首位、不同量级，避免触发均匀性检测
			sample = append(sample, int64(digit+1)*pow10(i%3+3)+int64(i)*7)
		}
	}
	return sample
}

func pow10(n int) int64 {
	v := int64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}

func TestBenfordViolation_ConformingSample(t *testing.T) {
	var d WashTradeDetector
	assert.False(t, d.benfordViolation(benfordSample()))
}

func TestBenfordViolation_SkewedSample(t *testing.T) {
	var d WashTradeDetector

	// 首位全部为 9，严重偏离 Benford 分布
	sample := make([]int64, 40)
	for i := range sample {
		sample[i] = 9000 + int64(i)
	}

	assert.True(t, d.benfordViolation(sample))
}

func TestBenfordViolation_InsufficientSample(t *testing.T) {
	var d WashTradeDetector

	// 不足 30 条按证据不足处理
	sample := make([]int64, 29)
	for i := range sample {
		sample[i] = 9000 + int64(i)
	}

	assert.False(t, d.benfordViolation(sample))
}

func TestBenfordViolation_NonPositiveIgnored(t *testing.T) {
	var d WashTradeDetector

	// 有效值扣除 0 和负数后不足门槛
	sample := make([]int64, 40)
	for i := 0; i < 20; i++ {
		sample[i] = 9000 + int64(i)
	}
	// 其余为 0

	assert.False(t, d.benfordViolation(sample))
}

func TestUniformitySuspicious(t *testing.T) {
	var d WashTradeDetector

	uniform := make([]int64, 20)
	for i := range uniform {
		uniform[i] = 1000
	}
	assert.True(t, d.uniformitySuspicious(uniform))

	varied := []int64{100, 350, 900, 2200, 4800, 120, 7600, 310, 9100, 560, 1800, 75}
	assert.False(t, d.uniformitySuspicious(varied))

	// 样本量不足门槛
	short := []int64{1000, 1000, 1000}
	assert.False(t, d.uniformitySuspicious(short))
}

func TestAddressRatioSuspicious(t *testing.T) {
	var d WashTradeDetector

	sample := make([]int64, 60)

	// 60 笔 / 10 地址 = 6 > 5
	assert.True(t, d.addressRatioSuspicious(sample, 10))
	// 60 笔 / 15 地址 = 4
	assert.False(t, d.addressRatioSuspicious(sample, 15))
	// 地址数未知不判定
	assert.False(t, d.addressRatioSuspicious(sample, 0))
}

func TestIsSuspicious_AnyDetectorTriggers(t *testing.T) {
	var d WashTradeDetector

	// 干净样本
	assert.False(t, d.IsSuspicious(benfordSample(), 500))

	// 仅地址比例异常
	assert.True(t, d.IsSuspicious(benfordSample(), 5))
}

func TestLeadingDigit(t *testing.T) {
	assert.Equal(t, 1, leadingDigit(1))
	assert.Equal(t, 7, leadingDigit(7))
	assert.Equal(t, 3, leadingDigit(392))
	assert.Equal(t, 9, leadingDigit(987654321))
}
