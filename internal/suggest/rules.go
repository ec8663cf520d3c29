package suggest

import (
	"strings"

	"github.com/TobiSchelling/noticeflow/internal/notice"
)

// rule emits message when any keyword occurs in the inspected field.
type rule struct {
	keywords []string
	message  string
}

// ruleGroup evaluates its rules in order against one summary field. When
// firstMatch is set only the first matching rule contributes.
type ruleGroup struct {
	field      func(notice.Summary) string
	firstMatch bool
	rules      []rule
}

func (g ruleGroup) apply(s notice.Summary) []string {
	value := g.field(s)
	if value == "" {
		return nil
	}
	var out []string
	for _, r := range g.rules {
		if containsAny(value, r.keywords) {
			out = append(out, r.message)
			if g.firstMatch {
				break
			}
		}
	}
	return out
}

var (
	titleRules = ruleGroup{
		field:      func(s notice.Summary) string { return s.Title },
		firstMatch: true,
		rules: []rule{
			{[]string{"장학"}, "💰 장학금 공지입니다. 자격요건을 꼼꼼히 확인해보세요"},
			{[]string{"취업", "채용"}, "💼 취업/채용 관련 공지입니다. 지원 자격과 마감일을 확인해보세요"},
			{[]string{"교환학생", "해외"}, "✈️ 국제교류 관련 공지입니다. 어학점수 요건을 미리 확인해보세요"},
		},
	}

	applicationRules = ruleGroup{
		field: func(s notice.Summary) string { return s.ApplicationMethod },
		rules: []rule{
			{[]string{"온라인"}, "🌐 온라인 신청 - 브라우저 호환성과 인터넷 연결을 확인해주세요"},
			{[]string{"방문"}, "🚪 직접 방문 제출 - 운영시간과 필요 서류를 미리 준비해주세요"},
			{[]string{"이메일"}, "📧 이메일 제출 - 파일 용량 제한과 첨부파일 형식을 확인해주세요"},
		},
	}

	targetRules = ruleGroup{
		field: func(s notice.Summary) string { return s.Target },
		rules: []rule{
			{[]string{"학년"}, "🎓 학년 제한이 있습니다. 본인의 해당 여부를 확인해주세요"},
			{[]string{"학과"}, "📚 특정 학과 대상입니다. 본인 학과의 해당 여부를 확인해주세요"},
		},
	}

	notesRules = ruleGroup{
		field: func(s notice.Summary) string { return s.ImportantNotes },
		rules: []rule{
			{[]string{"정원"}, "👥 모집 정원이 있습니다. 조기 신청을 권장합니다"},
			{[]string{"서류"}, "📋 필요 서류가 있습니다. 미리 준비해두시면 좋습니다"},
			{[]string{"면접"}, "🗣️ 면접이 있을 수 있습니다. 관련 자료를 미리 준비해보세요"},
		},
	}
)

const (
	msgNoSchedule     = "⏰ 일정 정보가 없습니다. 관련 부서에 문의하여 마감일을 확인해보세요"
	msgSummaryFailure = "❓ 상세 내용을 직접 확인해주세요"
)

// errorClass maps substrings of the error kind or message to a fixed set of
// suggestions. Classes are tried in order; the first match wins.
type errorClass struct {
	name        string
	kinds       []string
	messages    []string
	suggestions []string
}

var errorClasses = []errorClass{
	{
		name:     "credential",
		kinds:    []string{"api"},
		messages: []string{"key"},
		suggestions: []string{
			"🔑 API 키를 확인해주세요",
			"🔧 환경변수 GOOGLE_API_KEY 설정을 확인해주세요",
			"📱 API 사용량 한도를 확인해주세요",
		},
	},
	{
		name:     "connectivity",
		kinds:    []string{"network"},
		messages: []string{"connection"},
		suggestions: []string{
			"🌐 인터넷 연결을 확인해주세요",
			"🔄 잠시 후 다시 시도해주세요",
			"🛡️ 방화벽 설정을 확인해주세요",
		},
	},
	{
		name:     "malformed",
		kinds:    []string{"json"},
		messages: []string{"parsing"},
		suggestions: []string{
			"📝 입력 데이터 형식을 확인해주세요",
			"🔄 다시 시도해주세요",
			"📞 기술지원팀에 문의해주세요",
		},
	},
	{
		name:  "validation",
		kinds: []string{"validation"},
		suggestions: []string{
			"✅ 필수 필드가 모두 입력되었는지 확인해주세요",
			"📏 입력 데이터의 길이와 형식을 확인해주세요",
			"🔍 입력값을 다시 검토해주세요",
		},
	},
}

var otherErrorSuggestions = []string{
	"🔄 잠시 후 다시 시도해주세요",
	"📞 관리자에게 문의해주세요",
	"📝 오류 상황을 기록해두시면 도움이 됩니다",
}

const msgErrorFailure = "📞 기술지원팀에 문의해주세요"

func (c errorClass) matches(kind, message string) bool {
	return containsAny(kind, c.kinds) || containsAny(message, c.messages)
}

// Quality follow-ups.
var missingFieldMessages = map[string]string{
	"summary":  "📝 요약 정보를 더 상세히 확인해주세요",
	"schedule": "⏰ 일정 정보를 별도로 확인해주세요",
	"target":   "🎯 신청 대상을 별도로 확인해주세요",
}

var warningRules = []rule{
	{[]string{"일정"}, "📅 공식 홈페이지에서 일정을 다시 확인해보세요"},
	{[]string{"대상"}, "👤 신청 자격을 관련 부서에 직접 문의해보세요"},
}

const (
	msgIncomplete     = "⚠️ 일부 정보가 누락되어 있습니다"
	msgQualityFailure = "🔍 원문을 직접 확인해주세요"
)

// categoryClass is generic advice for a notice category.
type categoryClass struct {
	keywords    []string
	suggestions []string
}

var categoryClasses = []categoryClass{
	{
		keywords: []string{"장학"},
		suggestions: []string{
			"💡 다른 장학금도 함께 검토해보세요",
			"📋 지원 서류를 미리 준비해두세요",
			"⏰ 마감일 전에 여유있게 신청하세요",
		},
	},
	{
		keywords: []string{"취업", "채용"},
		suggestions: []string{
			"📄 이력서와 자기소개서를 미리 준비하세요",
			"🔍 회사 정보를 미리 조사해보세요",
			"💼 관련 자격증이나 경험을 정리해보세요",
		},
	},
	{
		keywords: []string{"교육", "강의"},
		suggestions: []string{
			"📚 사전 학습 자료가 있는지 확인해보세요",
			"🕐 수업 시간표를 미리 확인하세요",
			"📝 필요한 준비물이 있는지 확인해보세요",
		},
	},
	{
		keywords: []string{"행사"},
		suggestions: []string{
			"🎫 참가 신청 방법을 미리 확인하세요",
			"📍 행사 장소와 교통편을 확인해보세요",
			"👕 드레스코드가 있는지 확인해보세요",
		},
	},
}

var defaultCategorySuggestions = []string{
	"📖 공지사항을 주기적으로 확인하세요",
	"❓ 궁금한 점은 담당자에게 문의하세요",
	"📱 관련 앱이나 웹사이트를 북마크해두세요",
}

const (
	msgCategoryFailure    = "📞 담당 부서에 직접 문의해주세요"
	msgConsolidateFailure = "📞 관련 부서에 직접 문의해주세요"
)

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
