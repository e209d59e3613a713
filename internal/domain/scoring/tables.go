package scoring

import (
	"github.com/okian/kline/internal/domain/chart"
	"github.com/okian/kline/internal/domain/model"
)

var starScores = map[string]float64{
	// major
	"紫微": 18, "天机": 10, "太阳": 12, "武曲": 11, "天同": 9, "廉贞": 8, "天府": 16,
	"太阴": 11, "贪狼": 10, "巨门": 6, "天相": 12, "天梁": 11, "七杀": 7, "破军": 6,
	// assistants
	"左辅": 10, "右弼": 10, "文昌": 9, "文曲": 9, "天魁": 11, "天钺": 11,
	// malefics
	"擎羊": -12, "陀罗": -10, "火星": -8, "铃星": -8, "地空": -9, "地劫": -9,
	"禄存": 12, "天马": 8,
	// adjective
	"红鸾": 6, "天喜": 6, "天刑": -4, "天姚": 3, "天哭": -3, "天虚": -3,
	"龙池": 4, "凤阁": 4, "华盖": 2, "咸池": -2, "天德": 5, "月德": 5,
	"天官": 4, "天福": 4, "解神": 5, "天巫": 3, "天月": -2, "阴煞": -5,
	"台辅": 3, "封诰": 3, "三台": 4, "八座": 4, "恩光": 3, "天贵": 3,
}

var brightnessMultipliers = map[chart.Brightness]float64{
	chart.BrightnessTemple:     1.5,
	chart.BrightnessProsperous: 1.3,
	chart.BrightnessGained:     1.1,
	chart.BrightnessFavorable:  1.0,
	chart.BrightnessNeutral:    0.9,
	chart.BrightnessWeak:       0.7,
	chart.BrightnessFallen:     0.5,
}

var tagModifiers = TagTable{chart.TagLu: 15, chart.TagQuan: 12, chart.TagKe: 10, chart.TagJi: -18}

var cycleTables = CycleTables{
	Yearly:       TagTable{chart.TagLu: 8, chart.TagQuan: 6, chart.TagKe: 5, chart.TagJi: -10},
	Monthly:      TagTable{chart.TagLu: 12, chart.TagQuan: 10, chart.TagKe: 8, chart.TagJi: -15},
	DecadalMonth: TagTable{chart.TagLu: 10, chart.TagQuan: 8, chart.TagKe: 6, chart.TagJi: -12},
	DecadalYear:  TagTable{chart.TagLu: 6, chart.TagQuan: 5, chart.TagKe: 4, chart.TagJi: -8},
	Weekly:       TagTable{chart.TagLu: 3, chart.TagQuan: 2, chart.TagKe: 2, chart.TagJi: -5},
}

var dimensionPalaces = map[model.Dimension][]PalaceWeight{
	model.DimensionCareer:       {{chart.PalaceCareer, 0.5}, {chart.PalaceLife, 0.3}, {chart.PalaceTravel, 0.2}},
	model.DimensionWealth:       {{chart.PalaceWealth, 0.5}, {chart.PalaceFortune, 0.3}, {chart.PalaceProperty, 0.2}},
	model.DimensionRelationship: {{chart.PalaceSpouse, 0.5}, {chart.PalaceChildren, 0.3}, {chart.PalaceSiblings, 0.2}},
	model.DimensionHealth:       {{chart.PalaceHealth, 0.5}, {chart.PalaceParents, 0.3}, {chart.PalaceLife, 0.2}},
}

var compositeWeights = map[model.Dimension]float64{
	model.DimensionCareer:       0.3,
	model.DimensionWealth:       0.25,
	model.DimensionRelationship: 0.25,
	model.DimensionHealth:       0.2,
}

// Star groups used for convergence events.
var (
	AuspiciousAssistants = []string{"左辅", "右弼", "天魁", "天钺", "文昌", "文曲"}
	Malefics             = []string{"擎羊", "陀罗", "火星", "铃星", "地空", "地劫"}
)
