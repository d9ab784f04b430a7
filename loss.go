package gan_encoder

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

type LossReduction uint16

const (
	LossReductionSum = LossReduction(iota)
	LossReductionMean
)

// reduce Applies reduction to element-wise loss. Default reduction is 'mean'
func reduce(x *gorgonia.Node, reduction []LossReduction) (*gorgonia.Node, error) {
	r := LossReductionMean
	if len(reduction) != 0 {
		r = reduction[0]
	}
	switch r {
	case LossReductionSum:
		return gorgonia.Sum(x)
	case LossReductionMean:
		return gorgonia.Mean(x)
	default:
		return nil, fmt.Errorf("Reduction type %d is not supported", r)
	}
}

// MSELoss See ref. https://en.wikipedia.org/wiki/Mean_squared_error
func MSELoss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	sub, err := gorgonia.Sub(a, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A-B)")
	}
	sqr, err := gorgonia.Square(sub)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x^2)")
	}
	return reduce(sqr, reduction)
}

// L1Loss See ref. https://en.wikipedia.org/wiki/Least_absolute_deviations
func L1Loss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	sub, err := gorgonia.Sub(a, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A-B)")
	}
	abs, err := gorgonia.Abs(sub)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do |x|")
	}
	return reduce(abs, reduction)
}

// CrossEntropyLoss See ref. https://en.wikipedia.org/wiki/Cross_entropy#Cross-entropy_loss_function_and_logistic_regression
// A - predicted probabilities, B - target ones
func CrossEntropyLoss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	hprod, err := negLogProd(a, b)
	if err != nil {
		return nil, err
	}
	return reduce(hprod, reduction)
}

// BinaryCrossEntropyLoss Same as CrossEntropyLoss, but for two classes:
// -(B*log(A) + (1-B)*log(1-A))
func BinaryCrossEntropyLoss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	positive, err := negLogProd(a, b)
	if err != nil {
		return nil, err
	}
	one, err := scalarLike(a, 1.0)
	if err != nil {
		return nil, err
	}
	oneMinusA, err := gorgonia.Sub(one, a)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-A)")
	}
	oneMinusB, err := gorgonia.Sub(one, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-B)")
	}
	negative, err := negLogProd(oneMinusA, oneMinusB)
	if err != nil {
		return nil, err
	}
	sum, err := gorgonia.Add(positive, negative)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x+y)")
	}
	return reduce(sum, reduction)
}

// negLogProd -log(A).*B
func negLogProd(a, b *gorgonia.Node) (*gorgonia.Node, error) {
	log, err := gorgonia.Log(a)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log(A)")
	}
	neg, err := gorgonia.Neg(log)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do -1*x")
	}
	hprod, err := gorgonia.HadamardProd(neg, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x.*B)")
	}
	return hprod, nil
}

// HuberLoss Pseudo-Huber loss: delta^2 * (sqrt(1 + ((A-B)/delta)^2) - 1)
// See ref. https://en.wikipedia.org/wiki/Huber_loss#Pseudo-Huber_loss_function
func HuberLoss(a, b *gorgonia.Node, delta float64, reduction ...LossReduction) (*gorgonia.Node, error) {
	if delta <= 0 {
		return nil, fmt.Errorf("Delta must be positive, but got %f", delta)
	}
	invDelta, err := scalarLike(a, 1.0/delta)
	if err != nil {
		return nil, err
	}
	sqrDelta, err := scalarLike(a, delta*delta)
	if err != nil {
		return nil, err
	}
	one, err := scalarLike(a, 1.0)
	if err != nil {
		return nil, err
	}
	sub, err := gorgonia.Sub(a, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A-B)")
	}
	div, err := gorgonia.Mul(sub, invDelta)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (X/delta)")
	}
	sqr, err := gorgonia.Square(div)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x^2)")
	}
	addOne, err := gorgonia.Add(sqr, one)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1.+X)")
	}
	sqrt, err := gorgonia.Sqrt(addOne)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do sqrt(x)")
	}
	subOne, err := gorgonia.Sub(sqrt, one)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (X.-1)")
	}
	scaled, err := gorgonia.Mul(subOne, sqrDelta)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (delta^2*x)")
	}
	return reduce(scaled, reduction)
}

// WassersteinLoss See ref. https://arxiv.org/abs/1701.07875
// Labels are expected to be +1/-1 so the loss is -mean(yTrue*yPred)
func WassersteinLoss(yTrue, yPred *gorgonia.Node) (*gorgonia.Node, error) {
	hprod, err := gorgonia.HadamardProd(yTrue, yPred)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A.*B)")
	}
	mean, err := gorgonia.Mean(hprod)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do mean(x)")
	}
	return gorgonia.Neg(mean)
}

func mseLoss(yTrue, yPred *gorgonia.Node) (*gorgonia.Node, error) {
	return MSELoss(yPred, yTrue)
}

func crossEntropyLoss(yTrue, yPred *gorgonia.Node) (*gorgonia.Node, error) {
	return CrossEntropyLoss(yPred, yTrue)
}

func binaryCrossEntropyLoss(yTrue, yPred *gorgonia.Node) (*gorgonia.Node, error) {
	return BinaryCrossEntropyLoss(yPred, yTrue)
}

func huberLoss(yTrue, yPred *gorgonia.Node) (*gorgonia.Node, error) {
	return HuberLoss(yPred, yTrue, 1.0)
}

func l1Loss(yTrue, yPred *gorgonia.Node) (*gorgonia.Node, error) {
	return L1Loss(yPred, yTrue)
}

// EncoderLoss Returns reconstruction loss for GAN inversion:
//
//	loss(yTrue, yPred) = mean((yPred-yTrue)^2) + mean((F(yPred)-F(yTrue))^2)
//
// where F is the discriminator truncated at its feature extractor layer (perceptual term).
// Discriminator's weights are shared between both applications and are not trained by this loss.
//
// batchSize - batch size of both yTrue and yPred
//
func EncoderLoss(discriminator *DiscriminatorNet, batchSize int) LossFunc {
	return func(yTrue, yPred *gorgonia.Node) (*gorgonia.Node, error) {
		pixel, err := MSELoss(yPred, yTrue)
		if err != nil {
			return nil, errors.Wrap(err, "Can't evaluate pixel-wise loss")
		}
		featuresPred, err := discriminator.Features(yPred, batchSize)
		if err != nil {
			return nil, errors.Wrap(err, "Can't extract features of prediction")
		}
		featuresTrue, err := discriminator.Features(yTrue, batchSize)
		if err != nil {
			return nil, errors.Wrap(err, "Can't extract features of target")
		}
		perceptual, err := MSELoss(featuresPred, featuresTrue)
		if err != nil {
			return nil, errors.Wrap(err, "Can't evaluate perceptual loss")
		}
		return gorgonia.Add(pixel, perceptual)
	}
}
