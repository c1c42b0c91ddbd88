package rag

import (
	"fmt"
	"strings"
)

// Sampling temperatures per task.
const (
	conversationalTemperature = 0.5
	answerTemperature         = 0.1
	summaryTemperature        = 0.2
	questionsTemperature      = 0.7
	keywordsTemperature       = 0.0
)

const (
	conversationalSystemPrompt = "Bạn là một trợ lý AI thân thiện và hữu ích. Hãy trả lời câu hỏi của người dùng một cách ngắn gọn và tự nhiên."

	// GreetingFallback answers a conversational query when generation fails.
	GreetingFallback = "Xin chào! Tôi có thể giúp gì cho bạn?"

	// NoContextAnswer is returned when retrieval finds nothing.
	NoContextAnswer = "Tôi xin lỗi, tôi không tìm thấy bất kỳ thông tin nào liên quan trong tài liệu của bạn để trả lời câu hỏi này."

	contextSeparator = "\n\n---\n\n"
)

// conversationalQueries are answered without retrieval.
var conversationalQueries = map[string]struct{}{
	"xin chào":          {},
	"chào bạn":          {},
	"hello":             {},
	"hi":                {},
	"cảm ơn":            {},
	"cảm ơn bạn":        {},
	"thank you":         {},
	"thanks":            {},
	"bạn là ai":         {},
	"bạn tên gì":        {},
	"bạn làm được gì":   {},
	"bạn có thể làm gì": {},
}

// IsConversational reports whether query is small talk: its lowercased,
// trimmed form without question marks is one of the known phrases.
func IsConversational(query string) bool {
	normalized := strings.ReplaceAll(strings.TrimSpace(strings.ToLower(query)), "?", "")
	_, ok := conversationalQueries[normalized]
	return ok
}

func answerPrompt(query string, contexts []string) string {
	return fmt.Sprintf(`Bạn là một trợ lý AI chuyên gia. Sử dụng các đoạn văn bản trong phần NGỮ CẢNH dưới đây để trả lời CÂU HỎI của người dùng một cách toàn diện.
Hãy tổng hợp và suy luận thông tin từ các đoạn văn bản để tạo ra một câu trả lời mạch lạc và hữu ích.

NGỮ CẢNH:
%s

CÂU HỎI: %s

TRẢ LỜI:
`, strings.Join(contexts, contextSeparator), query)
}

func summaryPrompt(text string) string {
	return fmt.Sprintf(`Dựa vào toàn bộ văn bản được cung cấp dưới đây, hãy viết một bản tóm tắt chi tiết, nêu bật các ý chính, các số liệu và kết luận quan trọng.

VĂN BẢN:
%s

BẢN TÓM TẮT CHI TIẾT:
`, text)
}

func questionsPrompt(text string, n int) string {
	return fmt.Sprintf(`Bạn là một giáo viên nhiều kinh nghiệm. Dựa vào toàn bộ văn bản được cung cấp dưới đây, hãy tạo ra chính xác %d câu hỏi ôn tập quan trọng để kiểm tra kiến thức.

VĂN BẢN:
%s

%d CÂU HỎI ÔN TẬP:
`, n, text, n)
}

func keywordsPrompt(text string) string {
	return fmt.Sprintf(`Bạn là một chuyên gia phân tích dữ liệu. Dựa vào toàn bộ văn bản được cung cấp dưới đây, hãy thực hiện hai việc:
1. Liệt kê 5-10 từ khóa (keywords) hoặc cụm từ quan trọng nhất.
2. Liệt kê 3-5 chủ đề chính (main topics) mà tài liệu này đề cập.

Trình bày kết quả một cách rõ ràng.

VĂN BẢN:
%s

KẾT QUẢ PHÂN TÍCH:
`, text)
}
