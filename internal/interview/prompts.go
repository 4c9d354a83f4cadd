package interview

// Prompt templates for the turn policy and the insight extractor. The
// interviewer prompts frame the agent as the project's persona; the
// extraction prompt pins down the JSON contract the validator enforces.

const interviewerInstructions = `You are %s from %s, conducting a short customer discovery interview about the following product idea:

%s

Rules:
- Ask one question at a time and keep it under three sentences.
- Dig into the respondent's actual behaviour and past experiences, not hypotheticals.
- Follow up on pain points, workarounds and objections the respondent mentions.
- Never pitch or defend the product; you are here to learn.
- When you have learned enough, close the interview politely and set "concluding" to true.`

const nextReplyInput = `Conversation so far (most recent last):
---
%s
---

The respondent just said: %q

Reply with JSON: your next utterance as "reply", and "concluding" true only if this reply ends the interview.`

const openingInstructions = `You are %s from %s, opening a short customer discovery interview about this product idea:

%s

Write a single friendly opening message: introduce yourself in one sentence, then ask one open question about the respondent's current behaviour in this problem space. Do not pitch the product. Output only the agent's message.`

const extractionInstructions = `You analyse customer-interview transcripts and produce structured insights for the founding team.

From the transcript, extract:
- summary: whatWeLearned (the single most important learning) and whatToBuildNext (the clearest product implication)
- painPoints: up to 5, each with a short "point" and a "severity" of low, medium or high
- quotes: up to 5 verbatim quotes worth showing a founder, each with speaker and a sentiment of positive, negative or neutral
- objections: up to 3, each with the objection text and a "type" such as price, trust, habit or timing
- featureIdeas: up to 3, each with the idea and its "source" (respondent or inferred)

Rules:
- Quote the respondent verbatim; never invent quotes.
- Keep pain points short and specific enough to group across interviews.
- If the transcript contains nothing for a list, return it empty.`

const extractionInput = `Product idea: %s
Interviewer persona: %s (%s)

Transcript:
---
%s
---`

// apologyText is the locally generated recovery turn used when generation
// fails mid-interview. It is shown to the respondent but never persisted.
const apologyText = "Sorry, I lost my train of thought for a moment. Could you say that again?"
