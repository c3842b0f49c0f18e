package completion

import "github.com/elon-ai/dialogue-gateway/internal/chat"

var modeSummaries = map[chat.Mode]string{
	chat.ModeStandard:        "戦略的分析フレームワークを適用",
	chat.ModeFirstPrinciples: "第一原理思考で問題を分解・再構築",
	chat.ModeStrategy:        "高インパクト戦略シミュレーションを実行",
	chat.ModeLife:            "人生アドバイス",
}

const fallbackSummary = "分析完了"

// ModeSummary returns the one-line description reported as thinking_process.
func ModeSummary(mode chat.Mode) string {
	if s, ok := modeSummaries[mode]; ok {
		return s
	}
	return fallbackSummary
}
