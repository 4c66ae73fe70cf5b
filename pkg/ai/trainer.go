package ai

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Training hyperparameters. Full-batch logistic regression with L2; small
// enough data that 1200 passes finish instantly.
const (
	trainIterations    = 1200
	trainLearningRate  = 0.22
	trainL2            = 0.01
	trainMaxVocabSize  = 200
	trainMinTokenCount = 2
	trainMinSamples    = 8
)

// trainedDenseCount is how many leading DenseFeatureNames the trainer
// fits; the remaining context features keep zero weights until scored by
// a future training generation.
const trainedDenseCount = 17

// Sample is one labelled training row: the message text, a 0/1 scam
// label and the behavior flags observed at capture time.
type Sample struct {
	Message string
	Label   int

	PushesExternalPlatform      int
	DemandsUpfrontPayment       int
	RequestsSensitiveData       int
	ClaimsMiddlemanWithoutProof int
	TooGoodToBeTrue             int
	RepeatedContactAttempts     int
	IsSpam                      int
	AsksForStuff                int
	Advertising                 int
}

// TrainingResult summarizes one training run.
type TrainingResult struct {
	SampleCount   int
	PositiveCount int
	VocabSize     int
}

// Trainer fits a fresh model over labelled samples and saves it through
// the store.
type Trainer struct {
	store ModelStore
}

// NewTrainer creates a trainer writing into the given store.
func NewTrainer(store ModelStore) *Trainer {
	return &Trainer{store: store}
}

// TrainAndSave fits the model and persists it. Fails when the sample set
// is too small or single-labelled.
func (t *Trainer) TrainAndSave(samples []Sample) (TrainingResult, error) {
	if err := validateSamples(samples); err != nil {
		return TrainingResult{}, err
	}

	vocab := BuildVocab(samples, trainMaxVocabSize, trainMinTokenCount)
	featureCount := trainedDenseCount + len(vocab)
	weights := make([]float64, featureCount)
	bias := 0.0
	sampleCount := float64(len(samples))

	featureRows := make([][]float64, len(samples))
	for i, sample := range samples {
		featureRows[i] = buildTrainingFeatures(sample, vocab)
	}

	for iter := 0; iter < trainIterations; iter++ {
		gradW := make([]float64, featureCount)
		gradB := 0.0
		for i, sample := range samples {
			features := featureRows[i]
			z := bias
			for j, w := range weights {
				z += w * features[j]
			}
			err := sigmoid(z) - float64(sample.Label)
			for j, f := range features {
				gradW[j] += err * f
			}
			gradB += err
		}
		for j := range weights {
			gradW[j] = gradW[j]/sampleCount + trainL2*weights[j]
			weights[j] -= trainLearningRate * gradW[j]
		}
		bias -= trainLearningRate * (gradB / sampleCount)
	}

	dense := make(map[string]float64, len(DenseFeatureNames))
	for _, name := range DenseFeatureNames {
		dense[name] = 0.0
	}
	for i := 0; i < trainedDenseCount; i++ {
		dense[DenseFeatureNames[i]] = weights[i]
	}
	tokens := make(map[string]float64, len(vocab))
	for i, token := range vocab {
		tokens[token] = weights[trainedDenseCount+i]
	}

	model := ModelWeights{
		Version:             4,
		Intercept:           bias,
		DenseFeatureWeights: dense,
		TokenWeights:        tokens,
		MaxTokenWeights:     DefaultMaxTokenWeights,
	}
	if err := t.store.Save(model); err != nil {
		return TrainingResult{}, fmt.Errorf("save trained model: %w", err)
	}

	positives := 0
	for _, sample := range samples {
		if sample.Label == 1 {
			positives++
		}
	}
	return TrainingResult{
		SampleCount:   len(samples),
		PositiveCount: positives,
		VocabSize:     len(vocab),
	}, nil
}

// buildTrainingFeatures mirrors the first trainedDenseCount entries of
// DenseFeatureNames followed by vocab membership flags.
func buildTrainingFeatures(sample Sample, vocab []string) []float64 {
	context := BehaviorContext{
		Message:                     sample.Message,
		PushesExternalPlatform:      sample.PushesExternalPlatform > 0,
		DemandsUpfrontPayment:       sample.DemandsUpfrontPayment > 0,
		RequestsSensitiveData:       sample.RequestsSensitiveData > 0,
		ClaimsMiddlemanWithoutProof: sample.ClaimsMiddlemanWithoutProof > 0,
		TooGoodToBeTrue:             sample.TooGoodToBeTrue > 0,
		RepeatedContactAttempts:     sample.RepeatedContactAttempts,
		IsSpam:                      sample.IsSpam > 0,
		AsksForStuff:                sample.AsksForStuff > 0,
		Advertising:                 sample.Advertising > 0,
	}
	dense := ExtractDenseFeatures(context)

	features := make([]float64, trainedDenseCount+len(vocab))
	for i := 0; i < trainedDenseCount; i++ {
		features[i] = dense[DenseFeatureNames[i]]
	}
	if len(vocab) > 0 {
		present := make(map[string]struct{})
		for _, token := range ExtractFeatureTokens(sample.Message) {
			present[token] = struct{}{}
		}
		for i, token := range vocab {
			if _, ok := present[token]; ok {
				features[trainedDenseCount+i] = 1.0
			}
		}
	}
	return features
}

func validateSamples(samples []Sample) error {
	if len(samples) < trainMinSamples {
		return fmt.Errorf("not enough samples: have %d, need at least %d", len(samples), trainMinSamples)
	}
	hasZero, hasOne := false, false
	for _, sample := range samples {
		switch sample.Label {
		case 0:
			hasZero = true
		case 1:
			hasOne = true
		}
	}
	if !hasZero || !hasOne {
		return fmt.Errorf("need both labels 0 and 1 in training data")
	}
	return nil
}

// LoadSamplesCSV reads labelled samples from a CSV file with a header
// row: message, label, then the nine behavior flags. Rows with a blank
// message or a label other than 0/1 are skipped.
func LoadSamplesCSV(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open training file %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var samples []Sample
	header := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read training file %s: %w", path, err)
		}
		if header {
			header = false
			continue
		}
		if len(record) < 2 {
			continue
		}
		message := strings.TrimSpace(record[0])
		if message == "" {
			continue
		}
		label := parseFlag(record, 1)
		if label != 0 && label != 1 {
			continue
		}
		samples = append(samples, Sample{
			Message:                     message,
			Label:                       label,
			PushesExternalPlatform:      parseFlag(record, 2),
			DemandsUpfrontPayment:       parseFlag(record, 3),
			RequestsSensitiveData:       parseFlag(record, 4),
			ClaimsMiddlemanWithoutProof: parseFlag(record, 5),
			TooGoodToBeTrue:             parseFlag(record, 6),
			RepeatedContactAttempts:     parseFlag(record, 7),
			IsSpam:                      parseFlag(record, 8),
			AsksForStuff:                parseFlag(record, 9),
			Advertising:                 parseFlag(record, 10),
		})
	}
	return samples, nil
}

func parseFlag(record []string, index int) int {
	if index >= len(record) {
		return 0
	}
	value, err := strconv.Atoi(strings.TrimSpace(record[index]))
	if err != nil {
		return -1
	}
	return value
}
