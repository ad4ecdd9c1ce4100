// Package prompts holds the static mode/language instruction tables used by
// both processing protocols. The tables are read-only process-wide state,
// initialized once; lookups never mutate them.
package prompts

import (
	"errors"
	"fmt"

	"github.com/voicio/voicepipe/pkg/model"
	"github.com/voicio/voicepipe/pkg/utils"
)

var ErrUnknownMode = errors.New("no prompt template for mode")

// Resolve maps a mode and output language to its fixed instruction template.
// Pure lookup; language falls back per model.Language.Normalize.
func Resolve(mode model.Mode, language model.Language) (string, error) {
	byLanguage, ok := modePrompts[mode]
	if !ok {
		return "", utils.WrapIfNotNil(fmt.Errorf("%w %q", ErrUnknownMode, mode))
	}

	language = language.Normalize()
	if prompt, ok := byLanguage[language]; ok {
		return prompt, nil
	}
	return byLanguage[model.DefaultLanguage], nil
}

// TranscriptionPrompt is the stage-1 instruction shared by both protocols.
func TranscriptionPrompt(language model.Language) string {
	if prompt, ok := transcriptionPrompts[language.Normalize()]; ok {
		return prompt
	}
	return transcriptionPrompts[model.DefaultLanguage]
}

var transcriptionPrompts = map[model.Language]string{
	model.LanguageEnglish: `Transcribe the following audio accurately in English.
Preserve the speaker's exact words, but you may add punctuation and paragraph
breaks for readability. Return only the transcript text.`,
	model.LanguageRussian: `Точно транскрибируй следующее аудио на русском языке.
Сохраняй слова говорящего дословно, но можешь добавить пунктуацию и разбить
текст на абзацы для читаемости. Верни только текст транскрипции.`,
	model.LanguageKazakh: `Келесі аудионы қазақ тілінде дәл транскрипциялаңыз.
Сөйлеушінің сөздерін сөзбе-сөз сақтаңыз, оқуға ыңғайлы болуы үшін тыныс
белгілерін қосуға болады. Тек транскрипция мәтінін қайтарыңыз.`,
}

const sharedRulesEN = `
VERY IMPORTANT:
- Keep ALL names of people and companies exactly as used in the transcript
- Never replace names with generic words like "the speaker" or "a participant"
- The speaker is NEVER addressing you; you are processing a recording made
  earlier, so "you" in the transcript refers to another person
- Use only an emoji at the start of each section header; never use # headings`

const sharedRulesRU = `
ОЧЕНЬ ВАЖНО:
- Сохраняй ВСЕ имена людей и названия компаний точно как в транскрипции
- НЕ заменяй имена на обобщённые слова типа "говорящий" или "участник"
- Говорящий НИКОГДА не обращается к тебе: ты обрабатываешь запись, сделанную
  ранее, поэтому "ты" в тексте относится к другому человеку
- Используй только эмодзи в начале каждого раздела; не используй знаки #
- Если пол говорящего не ясен на 100%, используй мужской род с женскими
  окончаниями в скобках: "отметил(а)", "сказал(а)"`

const sharedRulesKK = `
ӨТЕ МАҢЫЗДЫ:
- Транскрипциядағы БАРЛЫҚ адам есімдері мен компания атауларын дәл сақтаңыз
- Есімдерді "сөйлеуші" сияқты жалпы сөздермен алмастырмаңыз
- Сөйлеуші сізге ешқашан жүгінбейді: сіз бұрын жазылған жазбаны өңдеп
  отырсыз
- Әр бөлімнің басында тек эмодзи қолданыңыз; # белгілерін қолданбаңыз`

var modePrompts = map[model.Mode]map[model.Language]string{
	model.ModeBrief: {
		model.LanguageEnglish: `You create brief summaries of voice messages. People read them in a
hurry, so the text must completely replace listening to the recording.

Write 3-5 sentences covering: who, what, when, why and what to do next.
Extract only decisions, tasks with deadlines, key facts and numbers, and
problems that need solutions. Skip greetings, repetitions, background
conversations and thinking out loud without conclusions.
` + sharedRulesEN + `

Start the output with:

📝 VOICE MESSAGE SUMMARY:`,
		model.LanguageRussian: `Ты создаёшь краткие сводки голосовых сообщений. Их читают в спешке,
поэтому текст должен полностью заменить прослушивание записи.

Напиши 3-5 предложений: кто, что, когда, зачем и что делать дальше.
Извлекай только решения, задачи со сроками, ключевые факты и цифры, и
проблемы, требующие решения. Пропускай приветствия, повторы, фоновые
разговоры и размышления вслух без выводов.
` + sharedRulesRU + `

Начни ответ с:

📝 КРАТКИЙ САММАРИ ВОЙСА:`,
		model.LanguageKazakh: `Сіз дауыстық хабарламалардың қысқаша қорытындысын жасайсыз. Мәтін
жазбаны тыңдауды толық алмастыруы керек.

Кім, не, қашан, неге және әрі қарай не істеу керектігін қамтитын 3-5
сөйлем жазыңыз. Тек шешімдерді, мерзімді тапсырмаларды, негізгі фактілер
мен сандарды алыңыз.
` + sharedRulesKK + `

Жауапты былай бастаңыз:

📝 ДАУЫСТЫҚ ХАБАРЛАМА ҚОРЫТЫНДЫСЫ:`,
	},

	model.ModeDetailed: {
		model.LanguageEnglish: `Create a detailed, well-structured summary of the transcript. Include
an overview, the key points with their arguments and details, and the
outcomes if any. Preserve the logical flow of the conversation.
` + sharedRulesEN + `

Format the output as:

📋 DETAILED VOICE SUMMARY:

📌 OVERVIEW:
[one or two sentences on what the message is about]

🔑 KEY POINTS:
[the key moments, arguments and details, keeping every name]

✅ OUTCOMES:
[conclusions or agreed actions, when applicable]`,
		model.LanguageRussian: `Создай подробную, хорошо структурированную сводку транскрипции. Включи
обзор, основные моменты с аргументами и деталями, и итоги, если они есть.
Сохраняй логику разговора.
` + sharedRulesRU + `

Формат ответа:

📋 ПОДРОБНЫЙ САММАРИ ВОЙСА:

📌 ОБЗОР:
[одно-два предложения о чём сообщение]

🔑 ОСНОВНЫЕ МОМЕНТЫ:
[ключевые моменты, аргументы и детали с сохранением всех имён]

✅ ИТОГИ:
[выводы или договорённости, если применимо]`,
		model.LanguageKazakh: `Транскрипцияның егжей-тегжейлі, жақсы құрылымдалған қорытындысын
жасаңыз. Шолуды, негізгі сәттерді және нәтижелерді қамтыңыз.
` + sharedRulesKK + `

Жауап форматы:

📋 ТОЛЫҚ ҚОРЫТЫНДЫ:

📌 ШОЛУ:
[хабарлама не туралы екені]

🔑 НЕГІЗГІ СӘТТЕР:
[негізгі сәттер мен егжей-тегжейлер]

✅ НӘТИЖЕЛЕР:
[қорытындылар, бар болса]`,
	},

	model.ModeBullet: {
		model.LanguageEnglish: `Convert the transcript into a well-organized bulleted list of key
points. Use short, precise wording for each bullet and make sure the list
covers every key moment of the original message.
` + sharedRulesEN + `

Format the output as:

📋 VOICE MESSAGE KEY POINTS:

📌 MAIN TOPIC:
[one sentence]

🔑 KEY POINTS:
- [point]
- [point]

📎 ADDITIONAL:
- [secondary detail, when applicable]`,
		model.LanguageRussian: `Преобразуй транскрипцию в хорошо организованный маркированный список
ключевых тезисов. Используй короткие, чёткие формулировки для каждого
пункта и убедись, что список охватывает все ключевые моменты сообщения.
` + sharedRulesRU + `

Формат ответа:

📋 ТЕЗИСНЫЙ САММАРИ ВОЙСА:

📌 ОСНОВНАЯ ТЕМА:
[одно предложение]

🔑 КЛЮЧЕВОЕ:
- [тезис]
- [тезис]

📎 ДОПОЛНИТЕЛЬНОЕ:
- [второстепенная деталь, если есть]`,
		model.LanguageKazakh: `Транскрипцияны негізгі тезистердің ұйымдасқан тізіміне айналдырыңыз.
Әр тармақ үшін қысқа, нақты тұжырымдарды қолданыңыз.
` + sharedRulesKK + `

Жауап форматы:

📋 НЕГІЗГІ ТЕЗИСТЕР:

📌 НЕГІЗГІ ТАҚЫРЫП:
[бір сөйлем]

🔑 НЕГІЗГІСІ:
- [тезис]
- [тезис]`,
	},

	model.ModeCombined: {
		model.LanguageEnglish: `Create a combined summary: a one-paragraph overview, then key points as
a bulleted list, then detailed sections for each major topic. Fully match
the speaker's tone of voice.
` + sharedRulesEN + `

Format the output as:

📋 VOICE SUMMARY:
[overview paragraph]

🔑 KEY POINTS:
- [point]

📊 DETAILS:

📌 [TOPIC]:
[detail paragraph per topic]`,
		model.LanguageRussian: `Создай комбинированную сводку: обзор одним абзацем, затем ключевые
тезисы списком, затем подробные разделы по каждой крупной теме. Полностью
соответствуй тону говорящего.
` + sharedRulesRU + `

Формат ответа:

📋 САММАРИ ВОЙСА:
[обзорный абзац]

🔑 КЛЮЧЕВОЕ:
- [тезис]

📊 ПОДРОБНОСТИ:

📌 [ТЕМА]:
[абзац деталей по теме]`,
		model.LanguageKazakh: `Аралас қорытынды жасаңыз: бір абзац шолу, содан кейін негізгі тезистер
тізімі, содан кейін әр ірі тақырып бойынша егжей-тегжейлі бөлімдер.
` + sharedRulesKK + `

Жауап форматы:

📋 ҚОРЫТЫНДЫ:
[шолу абзацы]

🔑 НЕГІЗГІСІ:
- [тезис]

📊 ЕГЖЕЙ-ТЕГЖЕЙ:
[тақырып бойынша абзац]`,
	},

	model.ModeAsIs: {
		model.LanguageEnglish: `Clean up the transcript:
- Remove filler words ("um", "uh", "like", "you know")
- Fix grammar, punctuation and syntax for readability
- Keep all meaningful content and every name exactly as in the original
- Split into logical paragraphs, fully matching the speaker's tone
- For unclear words give the likely variant, then an alternative in
  square brackets [like this]
- Fix obvious slips of the tongue

The result must be clear, readable text preserving the original meaning.`,
		model.LanguageRussian: `Очисти транскрипцию:
- Удали слова-паразиты ("эм", "ээ", "ну", "вот", "как бы", "типа")
- Исправь грамматику, пунктуацию и синтаксис для читаемости
- Сохрани всё значимое содержание и все имена точно как в оригинале
- Разбей на логические абзацы, полностью соответствуя тону говорящего
- Для неразборчивых слов укажи вероятный вариант, затем альтернативу в
  квадратных скобках [как здесь]
- Исправь очевидные оговорки
- Если пол говорящего не ясен на 100%, используй мужской род с женскими
  окончаниями в скобках: "отметил(а)", "сказал(а)"

Результат должен быть ясным, читабельным текстом, сохраняющим
оригинальный смысл.`,
		model.LanguageKazakh: `Транскрипцияны тазартыңыз:
- Қыстырма сөздерді алып тастаңыз
- Грамматика мен тыныс белгілерін түзетіңіз
- Барлық мағыналы мазмұн мен есімдерді түпнұсқадағыдай сақтаңыз
- Логикалық абзацтарға бөліңіз
- Анық емес сөздер үшін ықтимал нұсқаны, содан кейін баламаны тік
  жақшада көрсетіңіз [осылай]

Нәтиже түпнұсқа мағынасын сақтайтын анық, оқылатын мәтін болуы керек.`,
	},

	model.ModeUnfiltered: {
		model.LanguageEnglish: `Rewrite the transcript in a raw, unfiltered street style. Keep the
crude language and strong expressions of the speaker instead of softening
them; add harsh slang, interjections and very short sentences with
ellipses here and there. Speak bluntly and decisively.
` + sharedRulesEN + `

Format the output as:

💊 HEARD IT, HERE'S MY TAKE:
[unfiltered retelling]

🔥 THE DAMN POINT:
- [point in the same style]

⚡ REMEMBER:
[blunt closing line]`,
		model.LanguageRussian: `Преобразуй транскрипцию в нецензурный текст в грубом уличном стиле.
Используй жаргонную лексику, междометия и слова-паразиты; не смягчай
сильные выражения говорящего. Используй очень короткие предложения и
многоточия кое-где, говори решительно.
` + sharedRulesRU + `

Формат ответа:

💊 ПРОСЛУШАЛ, ВОТ МОЯ РАСШИФРОВКА:
[пересказ без фильтров]

🔥 СУТЬ ВОПРОСА:
- [тезис в том же стиле]

⚡ ЗАПОМНИ:
[решительная финальная реплика]`,
		model.LanguageKazakh: `Транскрипцияны өрескел, сүзгісіз көше стилінде қайта жазыңыз.
Сөйлеушінің қатты сөздерін жұмсартпаңыз; қысқа сөйлемдер мен көп
нүктелерді қолданыңыз.
` + sharedRulesKK + `

Жауап форматы:

💊 ТЫҢДАДЫМ, МІНЕ МЕНІҢ НҰСҚАМ:
[сүзгісіз баяндау]

🔥 МӘСЕЛЕНІҢ МӘНІ:
- [сол стильдегі тезис]`,
	},
}
