package ai

// DefaultSystemInstruction is sent with every text-only exchange.
const DefaultSystemInstruction = `Perform an emotional analysis of the user's message through sentiment and tone
detection. Summarize what they seem to be feeling in a short note, then respond in a warm,
supportive and encouraging way.`

// DefaultImageSystemInstruction is sent when the user attached an image. The model never
// sees the image itself, only the marker added by DecoratePrompt.
const DefaultImageSystemInstruction = DefaultSystemInstruction + `
If the user mentions uploading an image, acknowledge it in your response.`

// ImageMarker is prepended to the user's text when an image accompanied the message.
const ImageMarker = "[User uploaded an image]"

// DecoratePrompt returns the user text as it is sent to the model.
func DecoratePrompt(userText string, hasImage bool) string {
	if !hasImage {
		return userText
	}
	return ImageMarker + " " + userText
}
