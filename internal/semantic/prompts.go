package semantic

const answerFormat = `Respond with a JSON object only, exactly {"safe": true|false, "reason": "<short reason>"}.`

const generalPrompt = `You are a content safety reviewer for a professional community.
Mark content unsafe if it contains profanity, hate speech, threats, sexual content,
personal attacks, or health misinformation. Otherwise mark it safe.
` + answerFormat

const guestPrompt = `You are reviewing a guest contribution for a professional community.
Mark content unsafe if it contains profanity, hate speech, threats, sexual content,
personal attacks, or health misinformation.
Also mark it unsafe if it is low-effort, off-topic, or promotional: a guest contribution
must be substantive, constructive, and relevant to the discussion it joins.
` + answerFormat

var prompts = map[Profile]string{
	ProfileGeneral: generalPrompt,
	ProfileGuest:   guestPrompt,
}
