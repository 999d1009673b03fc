package metrics

import (
	"math"
	"time"
)

// タイピング指標の計算。全て純粋関数でタイマーやネットワークに依存しない。

// WPM は入力文字数と経過時間からwords-per-minuteを求める。
// 1ワード=5文字換算。経過時間が0以下の場合は0を返す（NaNをクライアントに流さない）。
func WPM(typedLen int, elapsed time.Duration) int {
	if elapsed <= 0 || typedLen <= 0 {
		return 0
	}
	words := float64(typedLen) / 5
	return int(math.Round(words / elapsed.Minutes()))
}

// Accuracy は正タイプ数と総タイプ数から正確率（0〜100）を求める。
// 未入力時は100を返す。
func Accuracy(correct, total int) float64 {
	if total == 0 {
		return 100
	}
	acc := float64(correct) / float64(total) * 100
	return math.Max(0, acc)
}

// CorrectChars は現在の入力全体を本文と同じ位置で比較し、
// 一致した文字数と入力文字数を返す。後からの修正で正確率が回復する方式。
func CorrectChars(input, text string) (correct, total int) {
	in := []rune(input)
	target := []rune(text)
	for i, r := range in {
		if i < len(target) && r == target[i] {
			correct++
		}
	}
	return correct, len(in)
}

// Progress は本文に対する入力済みの割合（0〜100）を求める。100が上限。
func Progress(typedLen, textLen int) float64 {
	if textLen <= 0 {
		return 0
	}
	return math.Min(100, float64(typedLen)/float64(textLen)*100)
}
