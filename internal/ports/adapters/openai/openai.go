package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/forPelevin/reelsmith/internal/types"
)

type Adapter struct {
	client     openai.Client
	chatModel  openai.ChatModel
	imageModel openai.ImageModel
}

func New(apiKey, chatModel, imageModel string) *Adapter {
	cm := openai.ChatModelGPT4oMini
	if chatModel != "" {
		cm = openai.ChatModel(chatModel)
	}
	im := openai.ImageModelDallE3
	if imageModel != "" {
		im = openai.ImageModel(imageModel)
	}
	return &Adapter{
		client:     openai.NewClient(option.WithAPIKey(apiKey)),
		chatModel:  cm,
		imageModel: im,
	}
}

// parsedScript mirrors types.Script with schema descriptions for strict
// structured output.
type parsedScript struct {
	Title         string            `json:"title" jsonschema_description:"The script title"`
	Theme         string            `json:"theme" jsonschema_description:"Visual theme (e.g. Cinematic, Cartoon)"`
	Characters    []parsedCharacter `json:"characters" jsonschema_description:"All characters defined before the first scene"`
	Scenes        []parsedScene     `json:"scenes" jsonschema_description:"All scenes in sequential order"`
	TotalDuration float64           `json:"total_duration" jsonschema_description:"Sum of scene durations in seconds"`
}

type parsedCharacter struct {
	Name        string `json:"name" jsonschema_description:"Character name (e.g. ROBO-7, GIRL)"`
	Description string `json:"description" jsonschema_description:"Physical description of the character"`
}

type parsedScene struct {
	SceneNumber int      `json:"scene_number" jsonschema_description:"Sequential scene number starting from 1"`
	Characters  []string `json:"characters" jsonschema_description:"Character names appearing in this scene"`
	Dialogue    string   `json:"dialogue" jsonschema_description:"What the character says, empty string if none"`
	Action      string   `json:"action" jsonschema_description:"What happens in the scene (ACTION line)"`
	Location    string   `json:"location" jsonschema_description:"Where the scene takes place"`
	Camera      string   `json:"camera" jsonschema_description:"Camera instruction (e.g. zoom in, static, pan)"`
	Duration    float64  `json:"duration_seconds" jsonschema_description:"Estimated duration: dialogue at 150 words per minute plus 2 seconds base, minimum 3"`
}

// generateSchema reflects a strict JSON schema for structured outputs.
func generateSchema[T any]() interface{} {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

var parsedScriptSchema = generateSchema[parsedScript]()

const parsePrompt = `You are a professional script parser. Parse the plain text script below into structured JSON.

PARSING RULES:
1. Extract TITLE from the "TITLE: ..." line and THEME from "THEME: ...".
2. Parse the CHARACTERS section: each entry is "NAME: DESCRIPTION", all before the first scene.
3. Parse each SCENE:
   - Scene numbers start at 1.
   - Speaking characters come from "CHARACTER:" lines; dialogue is what follows the colon.
   - ACTION, CAMERA and the "(Location: ...)" part of the scene header map to their fields.
   - Estimate duration: (dialogue word count / 150) * 60 + 2 seconds, minimum 3, one decimal place.
4. total_duration is the sum of all scene durations.

Script:

%s`

func (a *Adapter) Parse(ctx context.Context, scriptText string) (types.Script, error) {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "parsed_script",
		Description: openai.String("Structured reel script"),
		Schema:      parsedScriptSchema,
		Strict:      openai.Bool(true),
	}

	completion, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(fmt.Sprintf(parsePrompt, scriptText)),
		},
		Model: a.chatModel,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
	})
	if err != nil {
		return types.Script{}, fmt.Errorf("openai parse script: %w", err)
	}
	if len(completion.Choices) == 0 {
		return types.Script{}, fmt.Errorf("openai returned no choices")
	}

	raw := completion.Choices[0].Message.Content
	var ps parsedScript
	if err := json.Unmarshal([]byte(raw), &ps); err != nil {
		return types.Script{}, fmt.Errorf("parse openai response: %w\nraw: %s", err, raw)
	}
	return toScript(ps), nil
}

func toScript(ps parsedScript) types.Script {
	s := types.Script{
		Title:         ps.Title,
		Theme:         ps.Theme,
		TotalDuration: ps.TotalDuration,
	}
	for _, c := range ps.Characters {
		s.Characters = append(s.Characters, types.Character{Name: c.Name, Description: c.Description})
	}
	for _, sc := range ps.Scenes {
		s.Scenes = append(s.Scenes, types.Scene{
			Number:      sc.SceneNumber,
			Characters:  sc.Characters,
			Dialogue:    sc.Dialogue,
			Action:      sc.Action,
			Location:    sc.Location,
			Camera:      sc.Camera,
			DurationSec: sc.Duration,
		})
	}
	return s
}

const writeScriptPrompt = `You are a professional scriptwriter for short vertical video reels. Turn the story idea below into a formatted script.

REQUIRED FORMAT:

TITLE: <catchy title>
THEME: <visual theme, e.g. Cinematic, Cartoon, Cyberpunk>

CHARACTERS:
NARRATOR: Storytelling voice.
<NAME>: <physical description with distinctive features>

SCENE 1 (Location: <specific location>)
<NAME>: <one spoken sentence, 15 to 25 words>
ACTION: <what happens on screen, specific and vivid>
CAMERA: <camera instruction, e.g. zoom in, static, pan left>

RULES:
1. 3 to 6 scenes, total spoken time under 60 seconds.
2. Character names in CAPS, each defined once in CHARACTERS before the first scene.
3. Every scene has ACTION and CAMERA lines; dialogue is optional per scene.
4. Tell the story through the NARRATOR unless the idea names speaking characters.

Story idea:

%s`

func scriptPrompt(idea, theme string) string {
	p := fmt.Sprintf(writeScriptPrompt, idea)
	if theme != "" {
		p += fmt.Sprintf("\n\nUse %s as the THEME.", theme)
	}
	return p
}

// GenerateScript turns a free-form story idea into a script in the plain
// text format Parse consumes.
func (a *Adapter) GenerateScript(ctx context.Context, idea, theme string) (string, error) {
	completion, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(scriptPrompt(idea, theme)),
		},
		Model: a.chatModel,
	})
	if err != nil {
		return "", fmt.Errorf("openai generate script: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content) + "\n", nil
}

func (a *Adapter) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	img, err := a.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          a.imageModel,
		Size:           openai.ImageGenerateParamsSize1024x1792,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
		N:              openai.Int(1),
	})
	if err != nil {
		return nil, fmt.Errorf("openai generate image: %w", err)
	}
	if len(img.Data) == 0 {
		return nil, fmt.Errorf("openai returned no image data")
	}
	b, err := base64.StdEncoding.DecodeString(img.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return b, nil
}
