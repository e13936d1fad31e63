package assistant

import "strings"

// cannedAnswers are matched in order; the first key that contains, or is
// contained in, the question wins.
var cannedAnswers = []struct {
	key    string
	answer string
}{
	{
		key:    "推荐一些适合我的书籍",
		answer: "根据您的阅读历史，我推荐以下书籍：\n1. 《深入理解计算机系统》- 技术类经典\n2. 《百年孤独》- 文学名著\n3. 《人类简史》- 历史科普\n4. 《思考，快与慢》- 心理学\n5. 《原则》- 个人成长",
	},
	{
		key:    "分析我的阅读习惯",
		answer: "根据您的阅读数据，我发现：\n• 您偏好技术类书籍，占总阅读量的35%\n• 平均每月阅读3本书\n• 阅读时间主要集中在晚上\n• 喜欢做笔记，平均每本书有4条笔记\n• 建议：可以尝试更多文学类书籍来平衡阅读",
	},
	{
		key:    "总结我的读书笔记",
		answer: "您的读书笔记主要涵盖以下主题：\n• 技术原理和系统设计\n• 人生哲理和思考\n• 历史事件和人物\n• 文学创作技巧\n\n建议：可以将相关主题的笔记整理成知识体系，便于复习和应用。",
	},
	{
		key:    "制定读书计划",
		answer: "为您制定一个为期3个月的读书计划：\n\n第1个月：\n• 《深入理解计算机系统》- 继续阅读剩余部分\n• 《百年孤独》- 完成阅读\n\n第2个月：\n• 《人类简史》- 完成阅读\n• 选择1本新的技术书籍\n\n第3个月：\n• 选择1本文学类书籍\n• 选择1本个人成长类书籍\n\n建议每天阅读30-60分钟，周末可以适当增加时间。",
	},
}

const genericAnswer = "这是一个很好的问题！作为您的AI读书助手，我可以帮助您分析阅读数据、总结笔记、推荐书籍等。请告诉我您具体想了解什么，我会尽力为您提供帮助。"

// CannedAnswer returns the fallback answer for question.
func CannedAnswer(question string) string {
	for _, c := range cannedAnswers {
		if strings.Contains(question, c.key) || strings.Contains(c.key, question) {
			return c.answer
		}
	}
	return genericAnswer
}
