package story

import (
	"encoding/json"
	"fmt"
	"strings"

	"story-bot/api/internal/vision"
)

const analyzeSystem = `あなたは物語分析の専門家です。画像の解析結果を基に、物語に必要な要素を分析し、不足している要素を特定してください。

物語に必要な要素（キーは必ず英語のまま使うこと）:
1. character: 主人公や登場人物
2. setting: 場所や環境
3. emotion: 気持ちや感情
4. action: 出来事や行動
5. conflict: 課題や問題
6. resolution: 解決や結末

画像から読み取れない要素は elements に含めず、missing_elements に入れてください。
confidence は 0〜100 の整数です。

次のJSONだけを出力してください:
{
  "elements": {
    "character": {"value": "分析結果", "confidence": 80},
    "setting": {"value": "分析結果", "confidence": 70}
  },
  "missing_elements": ["conflict", "resolution"]
}`

const questionsSystem = `あなたは「物語の穴うめインタビュアー（3〜6歳向け）」です。

# 出力形式
純粋なJSONのみを出力してください。説明文やコードフェンスは不要です。

{
  "questions": [
    {
      "target_element": "character",
      "reason": "主人公が不明確",
      "question": "この おはなしの しゅじんこう は だれ？",
      "type": "open",
      "followups": ["なまえは なに？"]
    },
    {
      "target_element": "setting",
      "reason": "場所が不明確",
      "question": "この ばしょは どこかな？",
      "type": "choice",
      "options": ["やま", "うみ", "おうち"],
      "followups": ["どんな ところ？"]
    }
  ],
  "meta": {
    "icebreakers": true,
    "age_range": "3-6",
    "total_questions": 6
  }
}

# 質問作成のガイドライン
- target_element は character, setting, emotion, action, conflict, resolution のいずれか（英語）
- missing_elements をすべてカバーする
- 画像解析の要素からアイスブレイクを最大2問
- 3〜6歳向けのひらがな中心・短文、各質問は20文字前後
- type は "open" か "choice"。choice のときだけ options を付ける
- 決めつけは禁止
- 全体で%d問以内

# 避けるべき質問
- 「だれが かいたの？」（作者は子ども本人）
- 「どんな いろを つかったの？」（画像から分かる）
- 「いつ かいたの？」（時系列は不要）
- 「どこで かいたの？」（描いた場所は不要）

# 推奨する質問
- 「この おはなしの しゅじんこうは だれ？」
- 「この ばしょは どこかな？」
- 「なにか こまったことは あった？」
- 「この ひとは どんな きもち？」
- 「つぎに なにが おこるかな？」`

const validateSystem = `あなたは「3〜6歳向け物語作成の情報品質チェッカー」です。

# 出力形式
純粋なJSONのみを出力してください。説明文やコードフェンスは不要です。

{
  "validation_result": {
    "overall_score": 85,
    "completeness": {
      "score": 80,
      "missing_elements": ["主人公の名前", "問題の解決方法"],
      "sufficient_elements": ["主人公", "舞台", "問題"]
    },
    "age_appropriateness": {
      "score": 90,
      "issues": [],
      "strengths": ["ひらがな中心", "短文", "具体的"]
    },
    "story_coherence": {
      "score": 75,
      "issues": ["主人公の動機が不明確"],
      "suggestions": ["主人公がなぜその行動を取るのかを明確にする"]
    },
    "recommendations": [
      "主人公の名前を追加してください"
    ],
    "ready_for_story": false
  },
  "meta": {
    "total_questions": 6,
    "answered_questions": 5,
    "validation_timestamp": "2024-01-01T00:00:00Z"
  }
}

# 検証基準
## 完全性
- 主人公、舞台、問題、解決方法の基本要素が揃っているか
- 回答が少ない、または空のときは点数を下げる
- 画像から読み取れる要素と回答の整合性

## 年齢適切性
- ひらがな中心で理解しやすいか
- 短文で、抽象的すぎないか
- 恐怖や不安を煽る内容でないか

## 物語の一貫性
- 主人公の動機が明確か
- 問題と解決方法が論理的か
- キャラクターの行動が一貫しているか

## 推奨事項
- 不足している要素の具体的な提案
- 物語生成に進めるかどうかを ready_for_story で判定する`

func analyzePrompt(a vision.Analysis) string {
	return "画像の解析結果: " + a.JSON()
}

func questionsSystemFor(max int) string {
	return fmt.Sprintf(questionsSystem, max)
}

func questionsPrompt(a vision.Analysis, missing []string, max int) string {
	if missing == nil {
		missing = []string{}
	}
	var b strings.Builder
	b.WriteString("画像解析: ")
	b.WriteString(a.JSON())
	b.WriteString("\n\n不足要素: ")
	b.WriteString(mustJSON(missing))
	fmt.Fprintf(&b, "\n\n上記の情報をもとに、3〜6歳向けの質問を%d問以内で作成してください。\n必ずJSON形式のみで回答してください。\n", max)
	return b.String()
}

func validatePrompt(a vision.Analysis, questions []Question, answers []Answer) string {
	var b strings.Builder
	b.WriteString("画像解析結果: ")
	b.WriteString(a.JSON())
	b.WriteString("\n\n生成された質問:\n")
	b.WriteString(mustJSON(questions))
	b.WriteString("\n\n収集された回答:\n")
	b.WriteString(mustJSON(answers))
	b.WriteString("\n\n上記の情報を基に、3〜6歳向け物語作成に必要な情報の品質を検証してください。\n必ずJSON形式のみで回答してください。\n")
	return b.String()
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
