package regime

import (
	"math"
	"testing"

	"portfolio-analytics/internal/analytics"
)

func TestBaselineClassify(t *testing.T) {
	cases := []struct {
		name string
		obs  Observation
		want analytics.RegimeType
	}{
		{"calm uptrend", Observation{Volatility: 0.12, Return: 0.05}, analytics.RegimeBull},
		{"volatile downtrend", Observation{Volatility: 0.30, Return: -0.08}, analytics.RegimeBear},
		{"extreme volatility wins", Observation{Volatility: 0.40, Return: -0.10}, analytics.RegimeHighVol},
		{"extreme volatility even when rising", Observation{Volatility: 0.40, Return: 0.10}, analytics.RegimeHighVol},
		{"calm but falling", Observation{Volatility: 0.12, Return: -0.02}, analytics.RegimeNormal},
		{"volatile but rising", Observation{Volatility: 0.30, Return: 0.03}, analytics.RegimeNormal},
		{"middle of the road", Observation{Volatility: 0.22, Return: 0.01}, analytics.RegimeNormal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := BaselineClassify(tc.obs); got != tc.want {
				t.Fatalf("期望 %s, 实际 %s", tc.want, got)
			}
		})
	}
}

func TestStateModelUpdateNormalizes(t *testing.T) {
	model := NewStateModel()
	if err := model.Update(Observation{Volatility: 0.15, Return: 0.04}); err != nil {
		t.Fatalf("更新失败: %v", err)
	}

	var sum float64
	for _, p := range model.Distribution() {
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("后验分布应归一化, 和为 %f", sum)
	}
}

func TestStateModelConvergesOnRepeatedEvidence(t *testing.T) {
	model := NewStateModel()
	for i := 0; i < 10; i++ {
		if err := model.Update(Observation{Volatility: 0.30, Return: -0.05}); err != nil {
			t.Fatalf("第 %d 次更新失败: %v", i, err)
		}
	}

	regime, p := model.MostLikely()
	if regime != analytics.RegimeBear {
		t.Fatalf("持续熊市证据下应收敛到 Bear, 实际 %s (p=%f)", regime, p)
	}
	if p < 0.5 {
		t.Fatalf("收敛后的置信度应超过 0.5, 实际 %f", p)
	}
}

func TestStateModelDegenerateObservation(t *testing.T) {
	model := NewStateModel()
	err := model.Update(Observation{Volatility: 100, Return: -50})
	if err == nil {
		t.Fatal("离群观测应报退化错误")
	}
}

func TestProjectDoesNotMutate(t *testing.T) {
	model := NewStateModel()
	before := model.Distribution()

	projected := model.Project(30)
	var sum float64
	for i := 0; i < numStates; i++ {
		sum += projected.AtVec(i)
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("投影分布应归一化, 和为 %f", sum)
	}

	after := model.Distribution()
	for rt, p := range before {
		if after[rt] != p {
			t.Fatalf("Project 不应修改模型状态: %s %f -> %f", rt, p, after[rt])
		}
	}
}

func TestTransitionProbabilityIsSticky(t *testing.T) {
	model := NewStateModel()
	for _, rt := range analytics.RegimeTypes {
		stay := model.TransitionProbability(rt, rt)
		for _, other := range analytics.RegimeTypes {
			if other == rt {
				continue
			}
			if model.TransitionProbability(rt, other) >= stay {
				t.Fatalf("%s 的自留概率应最大", rt)
			}
		}
	}
}
