package summarize

import (
	"encoding/json"
	"strings"

	"github.com/TobiSchelling/noticeflow/internal/notice"
)

const promptTemplate = `
###

---
### Data of Notice ###
{input_content}
---

You are a highly competent assistant responsible for accurately extracting key information from academic notices and delivering it to students.

Analyze the following academic notice. Extract the essential information and return it **strictly in JSON format**.
- The JSON keys must be in English and snake_case.
- All JSON values must be written in Korean.
- If a specific field or piece of information is not mentioned in the text, make field empty but do not remove it.
- In the ` + "`schedule`" + ` field, find and extract only crucial single dates like deadlines (마감일).
- If the text provides a period (e.g., 'Application Period: YYYY.MM.DD HH:MM ~ YYYY.MM.DD HH:MM'), extract ONLY the end date and its corresponding time, and set the description to '신청 마감' (Application Deadline).

Prioritize the most critical information by placing the ` + "`title`" + ` and ` + "`summary`" + ` first in the JSON structure.

---
### JSON Format ###
{
    "title": "{input_title}", (title should not change or be removed)
    "summary": "(A detailed summary of the notice. It MUST include the main purpose, key activities, and expected benefits for participants.)",
    "schedule": [
        {
            "description": "(The type of deadline, e.g., '신청 마감', '서류 제출 마감'. MUST be a single event.)",
            "date": "(The corresponding single date ONLY. e.g., 'YYYY.MM.DD HH:MM' or 'YYYY.MM.DD'. If the time is specified in the notice, it must be included.)",
            "location": "(A place where the event on the specified date takes place)"
        }
    ],
    "target": "(Who the notice is for)",
    "application_method": "(A full phrase describing the method, e.g., 'OOO 홈페이지에서 온라인 신청', 'XX관 YY실로 방문 제출')",
    "important_notes": "(Key details like capacity, selection method, benefits, or contact info. Key details are separated by a slash.e.g., '정원: OO명 / 선발 방식: 서류 심사 / 혜택: 활동비 지원 / 문의: OOO팀 (02-123-4567)'))"
}
`

const ocrPreamble = "\n\nThe following is the content of img ocr. Please note that there may be typos.\n"

type ocrEntry struct {
	Filename string `json:"filename"`
	OCRText  string `json:"ocr_text"`
}

// BuildPrompt renders the notice-analysis prompt. Content is truncated to
// maxChars runes when maxChars > 0. OCR text is appended only when at least
// one image produced some.
func BuildPrompt(title string, images []notice.Image, content string, maxChars int) string {
	if maxChars > 0 {
		if r := []rune(content); len(r) > maxChars {
			content = string(r[:maxChars])
		}
	}

	input := content
	if hasOCRText(images) {
		entries := make([]ocrEntry, 0, len(images))
		for _, img := range images {
			entries = append(entries, ocrEntry{Filename: img.Filename, OCRText: img.OCRText})
		}
		data, _ := json.Marshal(entries)
		input += ocrPreamble + string(data)
	}

	r := strings.NewReplacer("{input_content}", input, "{input_title}", title)
	return r.Replace(promptTemplate)
}

func hasOCRText(images []notice.Image) bool {
	for _, img := range images {
		if strings.TrimSpace(img.OCRText) != "" {
			return true
		}
	}
	return false
}
