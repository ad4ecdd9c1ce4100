package prompts

import "github.com/voicio/voicepipe/pkg/model"

// DiagramPrompt instructs the model to design a Mermaid diagram and answer
// with a single JSON object. The concrete schema is enforced separately by
// the structured generator; the prompt restates it for models that ignore
// response schemas.
func DiagramPrompt(language model.Language) string {
	if prompt, ok := diagramPrompts[language.Normalize()]; ok {
		return prompt
	}
	return diagramPrompts[model.DefaultLanguage]
}

var diagramPrompts = map[model.Language]string{
	model.LanguageEnglish: `Analyze the transcript and build a Mermaid diagram that best captures
its structure. Pick the diagram type yourself: flowchart TD for processes
and decisions, mindmap for topic overviews, timeline for chronological
narratives, pie for proportions.

Requirements:
- The diagram must be valid Mermaid syntax
- Target a vertical 9:16 canvas: prefer top-down layouts, keep node
  labels under 40 characters
- Label everything in English
- Do not include markdown code fences inside the mermaid code

Answer with a single JSON object:
{"diagram_type": "<mermaid kind>", "title": "<short title>",
 "mermaid_code": "<the diagram source>"}`,
	model.LanguageRussian: `Проанализируй транскрипцию и построй Mermaid-диаграмму, которая лучше
всего отражает её структуру. Тип диаграммы выбери сам: flowchart TD для
процессов и решений, mindmap для обзора тем, timeline для хронологии,
pie для пропорций.

Требования:
- Диаграмма должна быть валидным синтаксисом Mermaid
- Ориентируйся на вертикальный холст 9:16: предпочитай верхне-нижние
  раскладки, держи подписи узлов короче 40 символов
- Все подписи на русском языке
- Не включай markdown-ограждения внутрь кода диаграммы

Ответь одним JSON-объектом:
{"diagram_type": "<тип mermaid>", "title": "<короткий заголовок>",
 "mermaid_code": "<исходный код диаграммы>"}`,
	model.LanguageKazakh: `Транскрипцияны талдап, оның құрылымын жақсы көрсететін Mermaid
диаграммасын құрыңыз. Диаграмма түрін өзіңіз таңдаңыз: процестер үшін
flowchart TD, тақырыптық шолу үшін mindmap, хронология үшін timeline.

Талаптар:
- Диаграмма жарамды Mermaid синтаксисі болуы керек
- Тік 9:16 кенепке бағдарланыңыз, түйін жазулары 40 таңбадан қысқа
- Барлық жазулар қазақ тілінде
- Диаграмма кодының ішіне markdown қоршауларын қоспаңыз

Бір JSON объектісімен жауап беріңіз:
{"diagram_type": "<mermaid түрі>", "title": "<қысқа тақырып>",
 "mermaid_code": "<диаграмма коды>"}`,
}

// DiagramHeader is the caption placed above a rendered diagram.
func DiagramHeader(language model.Language) string {
	switch language.Normalize() {
	case model.LanguageEnglish:
		return "Voice message diagram"
	case model.LanguageKazakh:
		return "Дауыстық хабарлама диаграммасы"
	default:
		return "Диаграмма голосового сообщения"
	}
}

// DiagramFailureText is the body of the placeholder image produced when the
// model output could not be rendered.
func DiagramFailureText(language model.Language) string {
	switch language.Normalize() {
	case model.LanguageEnglish:
		return "The diagram could not be rendered.\nA text summary of the structure is shown instead."
	case model.LanguageKazakh:
		return "Диаграмманы салу мүмкін болмады.\nОның орнына құрылымның мәтіндік сипаттамасы көрсетілген."
	default:
		return "Не удалось отрисовать диаграмму.\nВместо неё показано текстовое описание структуры."
	}
}
